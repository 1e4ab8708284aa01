// Package app wires configuration into the store, integrations and
// services shared by the server, the cron runner and ledgerctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"reseller-ledger/internal/cache"
	"reseller-ledger/internal/config"
	"reseller-ledger/internal/events"
	"reseller-ledger/internal/gateway"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/notify"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/repository/memory"
	"reseller-ledger/internal/repository/postgres"
	"reseller-ledger/internal/service"
)

type App struct {
	Config *config.Config
	Store  repository.Store

	Wallets      service.WalletService
	Ledger       service.LedgerService
	Plans        service.CommissionPlanService
	Distributor  service.CommissionDistributor
	Orchestrator service.Orchestrator
	Alerter      notify.Alerter

	// Metrics is the producer metrics handler, nil when Kafka is off.
	Metrics http.Handler

	closers []func()
}

// New connects everything cfg enables. Optional integrations (Redis,
// Kafka, SendGrid, Firebase) fall back to their no-op or log-only forms
// when unconfigured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	rateCache := cache.NewNopRateCache()
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		rateCache = cache.NewRedisRateCache(rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		logger.Info("Rate cache enabled", "addr", cfg.Redis.Addr, "ttl_seconds", cfg.Redis.TTLSeconds)
	}

	publisher := events.NewNopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
			// records outliving the per-publish timeout are failed by the client too
			DeliveryTimeout: 2 * cfg.PublishTimeout(),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		a.Metrics = kp.MetricsHandler()
		publisher = kp
		logger.Info("Event publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	alerters := notify.MultiAlerter{notify.LogAlerter{}}
	if cfg.SendGrid.APIKey != "" {
		alerters = append(alerters, notify.NewEmailAlerter(
			cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, cfg.SendGrid.OperatorEmails))
	}
	a.Alerter = alerters

	var pusher notify.Pusher = notify.LogPusher{}
	if cfg.Firebase.CredentialsFile != "" {
		fp, err := notify.NewFirebasePusher(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
		if err != nil {
			a.Close()
			return nil, err
		}
		pusher = fp
	}

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Secret, cfg.GatewayTimeout())

	a.Wallets = service.NewWalletService(store)
	a.Ledger = service.NewLedgerService(store)
	a.Plans = service.NewCommissionPlanService(store, rateCache)
	a.Distributor = service.NewCommissionDistributor(store, a.Plans, service.NewHierarchyResolver(store.Users()), publisher, pusher,
		service.DistributorConfig{NotifyTimeout: cfg.PublishTimeout()})
	a.Orchestrator = service.NewOrchestrator(store, a.Wallets, a.Ledger, a.Distributor, gw, publisher, a.Alerter, service.OrchestratorConfig{
		Endpoints:      cfg.Endpoints(),
		Charges:        cfg.ChargeTables(),
		GatewayTimeout: cfg.GatewayTimeout(),
		NotifyTimeout:  cfg.PublishTimeout(),
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config.Database
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory store; balances are lost on restart")
		return memory.NewStore(), nil
	}

	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database))
	db, err := sql.Open("postgres", a.Config.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, func() { db.Close() })
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established", "host", cfg.Host, "database", cfg.Database)

	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("Database schema migrated")
	}
	return postgres.NewStore(db, cfg.MaxRetries), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
