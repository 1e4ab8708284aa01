package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/events"
	"reseller-ledger/internal/gateway"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/repository/memory"
	"reseller-ledger/internal/service"
)

const testPIN = "4321"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// chain is an admin -> master -> dealer -> retailer onboarding chain.
type chain struct {
	admin, master, dealer, retailer *domain.User
}

func seedUser(t *testing.T, store repository.Store, role domain.Role, parent *domain.User) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPIN), bcrypt.MinCost)
	require.NoError(t, err)

	u := &domain.User{
		Name:    string(role) + "-" + uuid.NewString()[:8],
		Phone:   "98" + uuid.NewString()[:8],
		Role:    role,
		PINHash: string(hash),
		Active:  true,
	}
	if parent != nil {
		u.CreatedBy = &parent.ID
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	require.NoError(t, store.Wallets().Create(context.Background(), &domain.Wallet{UserID: u.ID, Balance: decimal.Zero}))
	return u
}

func seedChain(t *testing.T, store repository.Store) chain {
	t.Helper()
	var c chain
	c.admin = seedUser(t, store, domain.RoleAdmin, nil)
	c.master = seedUser(t, store, domain.RoleMaster, c.admin)
	c.dealer = seedUser(t, store, domain.RoleDealer, c.master)
	c.retailer = seedUser(t, store, domain.RoleRetailer, c.dealer)
	return c
}

// seedRate creates a plan, assigns it to userID and configures rate on it.
func seedRate(t *testing.T, plans service.CommissionPlanService, userID int64, rate domain.ServiceCommissionRate) *domain.ServiceCommissionRate {
	t.Helper()
	ctx := context.Background()
	plan := &domain.CommissionPlan{Name: "plan-" + uuid.NewString()[:8], Active: true}
	require.NoError(t, plans.CreatePlan(ctx, plan))
	require.NoError(t, plans.AssignPlan(ctx, userID, plan.ID, 1))

	rate.PlanID = plan.ID
	rate.Active = true
	require.NoError(t, plans.SaveRate(ctx, &rate))
	return &rate
}

func percentageRate(service domain.ServiceID, value, admin, master, dealer, retailer string) domain.ServiceCommissionRate {
	return domain.ServiceCommissionRate{
		Service:       service,
		Basis:         domain.CommissionBasisPercentage,
		Value:         dec(value),
		AdminShare:    dec(admin),
		MasterShare:   dec(master),
		DealerShare:   dec(dealer),
		RetailerShare: dec(retailer),
	}
}

func fund(t *testing.T, wallets service.WalletService, userID int64, amount string) {
	t.Helper()
	_, err := wallets.Credit(context.Background(), service.CreditRequest{
		UserID:   userID,
		Amount:   dec(amount),
		Category: domain.CategoryTopup,
		ActorID:  userID,
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, store repository.Store, userID int64) decimal.Decimal {
	t.Helper()
	w, err := store.Wallets().GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func seedSuccessfulTxn(t *testing.T, store repository.Store, userID int64, service domain.ServiceID, amount string) *domain.BusinessTransaction {
	t.Helper()
	txn := &domain.BusinessTransaction{
		ID:               uuid.NewString(),
		Service:          service,
		UserID:           userID,
		Amount:           dec(amount),
		Charge:           decimal.Zero,
		Status:           domain.TxnStatusSuccess,
		CommissionStatus: domain.CommissionStatusPending,
	}
	require.NoError(t, store.Transactions().Create(context.Background(), txn))
	return txn
}

func newMemoryStore() *memory.Store {
	return memory.NewStore()
}

var errInjected = errors.New("injected failure")

// faultyStore fails ledger appends matching failEntry, inside and outside
// transactions.
type faultyStore struct {
	repository.Store
	failEntry func(*domain.LedgerEntry) bool
}

func (f faultyStore) Ledger() repository.LedgerRepository {
	return faultyLedger{LedgerRepository: f.Store.Ledger(), failEntry: f.failEntry}
}

func (f faultyStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(faultyStore{Store: tx, failEntry: f.failEntry})
	})
}

type faultyLedger struct {
	repository.LedgerRepository
	failEntry func(*domain.LedgerEntry) bool
}

func (l faultyLedger) Create(ctx context.Context, e *domain.LedgerEntry) error {
	if l.failEntry(e) {
		return errInjected
	}
	return l.LedgerRepository.Create(ctx, e)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Call(ctx context.Context, method, endpoint string, payload any) (*gateway.Response, error) {
	args := m.Called(ctx, method, endpoint, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Response), args.Error(1)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, a domain.Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// stalledPublisher never delivers: Publish waits until the caller gives up.
type stalledPublisher struct {
	mu        sync.Mutex
	calls     int
	deadlines int
}

func (p *stalledPublisher) Publish(ctx context.Context, _ events.Event) error {
	p.mu.Lock()
	p.calls++
	if _, ok := ctx.Deadline(); ok {
		p.deadlines++
	}
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) Close() {}

func (p *stalledPublisher) counts() (calls, withDeadline int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.deadlines
}

// stalledPusher blocks like stalledPublisher and then fails.
type stalledPusher struct {
	mu    sync.Mutex
	calls int
}

func (p *stalledPusher) Push(ctx context.Context, _ domain.Notification) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-ctx.Done()
	return errors.New("push provider unreachable")
}

func (p *stalledPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
