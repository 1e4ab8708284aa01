package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/service"
)

type handler struct {
	svc Services
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "ok", nil)
}

// executeTransaction answers 400 when the request is rejected before any
// money moves, and 200 once the gateway has been called, whether the
// gateway accepted it or the amount was refunded.
func (h *handler) executeTransaction(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req executeTransactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sreq, err := req.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Orchestrator.Execute(r.Context(), claims.UserID, sreq)
	if err != nil {
		if errors.Is(err, service.ErrRefundFailed) {
			logger.Error("Refund failed, operators alerted", "user_id", claims.UserID, "error", err)
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
		writeError(w, r, err)
		return
	}
	if !res.Success && res.Data == nil {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ownerScope returns the user id a caller is restricted to. Admins see
// every transaction.
func ownerScope(r *http.Request) int64 {
	claims := ClaimsFromContext(r.Context())
	if claims.Role.IsAdmin() {
		return 0
	}
	return claims.UserID
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Orchestrator.Transaction(r.Context(), ownerScope(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "transaction found", txn)
}

func (h *handler) listCommissionRecords(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Orchestrator.Transaction(r.Context(), ownerScope(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.svc.Distributor.Records(r.Context(), txn.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("%d commission records", len(records)), records)
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	balance, err := h.svc.Wallets.Balance(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "balance", map[string]any{"user_id": claims.UserID, "balance": balance})
}

func (h *handler) listLedger(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	page, err := queryInt32(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt32(r, "page_size", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, total, err := h.svc.Ledger.List(r.Context(), claims.UserID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "ledger entries", map[string]any{
		"entries":     entries,
		"total_count": total,
		"page":        page,
	})
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan := &domain.CommissionPlan{Name: req.Name, DisplayName: req.DisplayName, Active: true}
	if err := h.svc.Plans.CreatePlan(r.Context(), plan); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.Succeeded("plan created", plan))
}

func (h *handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "plans", plans)
}

func (h *handler) saveRate(w http.ResponseWriter, r *http.Request) {
	var req saveRateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rate, err := req.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Plans.SaveRate(r.Context(), rate); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "rate saved", rate)
}

func (h *handler) assignPlan(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	var req assignPlanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Plans.AssignPlan(r.Context(), req.UserID, req.PlanID, claims.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "plan assigned", req)
}

func (h *handler) distributeCommission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.svc.Orchestrator.Transaction(r.Context(), 0, id); err != nil {
		writeError(w, r, err)
		return
	}
	ok, message := h.svc.Distributor.Process(r.Context(), id)
	if !ok {
		writeFailure(w, http.StatusUnprocessableEntity, message)
		return
	}
	writeOK(w, message, nil)
}

func (h *handler) reconcileWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid user id", errBadRequest))
		return
	}
	rec, err := h.svc.Ledger.Reconcile(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	message := "wallet is consistent with its ledger"
	if !rec.Consistent {
		message = "wallet balance does not match its ledger"
	}
	writeOK(w, message, rec)
}

func queryInt32(r *http.Request, key string, def int32) (int32, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return int32(v), nil
}
