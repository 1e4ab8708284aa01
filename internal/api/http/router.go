// Package http exposes the ledger services as a thin JSON API.
package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"reseller-ledger/internal/security"
	"reseller-ledger/internal/service"
)

// Services are the application services the API calls into.
type Services struct {
	Wallets      service.WalletService
	Ledger       service.LedgerService
	Plans        service.CommissionPlanService
	Distributor  service.CommissionDistributor
	Orchestrator service.Orchestrator
}

type Options struct {
	Tokens            security.TokenManager
	RequestsPerSecond float64
	Burst             int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter registers every route by name. Route names are the keys of
// config.EndpointSecurityConfig.
func NewRouter(svc Services, opts Options) *mux.Router {
	h := &handler{svc: svc}
	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet).Name("Health")
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet).Name("Metrics")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transactions", h.executeTransaction).Methods(http.MethodPost).Name("ExecuteTransaction")
	api.HandleFunc("/transactions/{id}", h.getTransaction).Methods(http.MethodGet).Name("GetTransaction")
	api.HandleFunc("/transactions/{id}/commissions", h.listCommissionRecords).Methods(http.MethodGet).Name("ListCommissionRecords")
	api.HandleFunc("/wallet", h.getBalance).Methods(http.MethodGet).Name("GetBalance")
	api.HandleFunc("/wallet/ledger", h.listLedger).Methods(http.MethodGet).Name("ListLedger")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/plans", h.createPlan).Methods(http.MethodPost).Name("CreatePlan")
	admin.HandleFunc("/plans", h.listPlans).Methods(http.MethodGet).Name("ListPlans")
	admin.HandleFunc("/rates", h.saveRate).Methods(http.MethodPost).Name("SaveRate")
	admin.HandleFunc("/plan-assignments", h.assignPlan).Methods(http.MethodPost).Name("AssignPlan")
	admin.HandleFunc("/transactions/{id}/distribute", h.distributeCommission).Methods(http.MethodPost).Name("DistributeCommission")
	admin.HandleFunc("/wallets/{userID}/reconciliation", h.reconcileWallet).Methods(http.MethodGet).Name("ReconcileWallet")

	limiter := newRateLimiter(opts.RequestsPerSecond, opts.Burst)
	router.Use(accessLog, authMiddleware(opts.Tokens), limiter.middleware)
	return router
}
