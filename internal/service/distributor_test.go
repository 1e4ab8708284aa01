package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/events"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/service"
)

type distributorFixture struct {
	store       repository.Store
	plans       service.CommissionPlanService
	distributor service.CommissionDistributor
	publisher   *recordingPublisher
	chain       chain
}

func newDistributorFixture(t *testing.T) *distributorFixture {
	t.Helper()
	store := newMemoryStore()
	return newDistributorFixtureOn(t, store, seedChain(t, store))
}

func newDistributorFixtureOn(t *testing.T, store repository.Store, c chain) *distributorFixture {
	t.Helper()
	plans := service.NewCommissionPlanService(store, nil)
	publisher := &recordingPublisher{}
	return &distributorFixture{
		store:       store,
		plans:       plans,
		distributor: service.NewCommissionDistributor(store, plans, service.NewHierarchyResolver(store.Users()), publisher, nil, service.DistributorConfig{}),
		publisher:   publisher,
		chain:       c,
	}
}

func (f *distributorFixture) balances(t *testing.T) []decimal.Decimal {
	t.Helper()
	return []decimal.Decimal{
		balanceOf(t, f.store, f.chain.admin.ID),
		balanceOf(t, f.store, f.chain.master.ID),
		balanceOf(t, f.store, f.chain.dealer.ID),
		balanceOf(t, f.store, f.chain.retailer.ID),
	}
}

func assertBalances(t *testing.T, got []decimal.Decimal, want ...string) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, got[i].Equal(dec(want[i])), "balance %d: got %s want %s", i, got[i], want[i])
	}
}

func TestCommissionDistributor_SplitsPoolAcrossHierarchy(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	require.True(t, ok, msg)
	assert.Contains(t, msg, "4 credits")
	assertBalances(t, f.balances(t), "2", "4", "6", "8")

	records, err := f.distributor.Records(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.True(t, rec.OriginalAmount.Equal(dec("1000")))
		assert.NotEmpty(t, rec.Reference)
	}

	stored, err := f.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusDistributed, stored.CommissionStatus)
	assert.Equal(t, []events.Type{events.TypeCommissionDistributed}, f.publisher.types())

	entries, err := f.store.Ledger().ListByBusinessTxn(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, domain.CategoryCommission, e.Category)
		assert.Equal(t, domain.EntryTypeCredit, e.Type)
	}
}

func TestCommissionDistributor_RoundsEachShareIndependently(t *testing.T) {
	f := newDistributorFixture(t)
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceDMT, "1.5", "10", "15", "35", "40"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceDMT, "500")

	ok, msg := f.distributor.Process(context.Background(), txn.ID)
	require.True(t, ok, msg)
	assertBalances(t, f.balances(t), "0.75", "1.13", "2.63", "3.00")
	assert.Contains(t, msg, "Rs 7.51")
}

func TestCommissionDistributor_Idempotent(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, _ := f.distributor.Process(ctx, txn.ID)
	require.True(t, ok)
	ok, msg := f.distributor.Process(ctx, txn.ID)
	require.True(t, ok)
	assert.Equal(t, "commission already distributed", msg)

	assertBalances(t, f.balances(t), "2", "4", "6", "8")
	records, err := f.distributor.Records(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestCommissionDistributor_FailsClosedWithoutPlan(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, service.ErrNoCommissionPlan.Error())
	assertBalances(t, f.balances(t), "0", "0", "0", "0")

	stored, err := f.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusFailed, stored.CommissionStatus)
	assert.Empty(t, f.publisher.types())
}

func TestCommissionDistributor_FailsClosedWithoutRate(t *testing.T) {
	f := newDistributorFixture(t)
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceDMT, "1", "25", "25", "25", "25"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(context.Background(), txn.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, service.ErrNoRateConfigured.Error())
	assertBalances(t, f.balances(t), "0", "0", "0", "0")
}

func TestCommissionDistributor_AmountOutsideEligibility(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	rate := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")
	rate.MinAmount = decimal.NewNullDecimal(dec("100"))
	rate.MaxAmount = decimal.NewNullDecimal(dec("500"))
	seedRate(t, f.plans, f.chain.retailer.ID, rate)
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, _ := f.distributor.Process(ctx, txn.ID)
	assert.False(t, ok)
	stored, err := f.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusSkipped, stored.CommissionStatus)
}

func TestCommissionDistributor_ZeroPool(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceRecharge, "0", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	assert.True(t, ok)
	assert.Equal(t, "no commission for this transaction", msg)
	stored, err := f.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusSkipped, stored.CommissionStatus)
}

func TestCommissionDistributor_IgnoresUnsuccessfulTransactions(t *testing.T) {
	f := newDistributorFixture(t)
	ctx := context.Background()
	seedRate(t, f.plans, f.chain.retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, f.store, f.chain.retailer.ID, domain.ServiceRecharge, "1000")
	txn.Status = domain.TxnStatusRefunded
	require.NoError(t, f.store.Transactions().Update(ctx, txn))

	ok, _ := f.distributor.Process(ctx, txn.ID)
	assert.False(t, ok)
	assertBalances(t, f.balances(t), "0", "0", "0", "0")

	stored, err := f.store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusPending, stored.CommissionStatus)

	ok, _ = f.distributor.Process(ctx, "no-such-transaction")
	assert.False(t, ok)
}

func TestCommissionDistributor_MissingLevelsAreSkipped(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	admin := seedUser(t, store, domain.RoleAdmin, nil)
	retailer := seedUser(t, store, domain.RoleRetailer, admin)
	f := newDistributorFixtureOn(t, store, chain{admin: admin, retailer: retailer})
	seedRate(t, f.plans, retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, store, retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	require.True(t, ok, msg)
	assert.True(t, balanceOf(t, store, admin.ID).Equal(dec("2")))
	assert.True(t, balanceOf(t, store, retailer.ID).Equal(dec("8")))

	records, err := f.distributor.Records(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCommissionDistributor_CreditFailureRollsBackEveryShare(t *testing.T) {
	mem := newMemoryStore()
	c := seedChain(t, mem)
	dealerWallet, err := mem.Wallets().GetByUserID(context.Background(), c.dealer.ID)
	require.NoError(t, err)

	store := faultyStore{Store: mem, failEntry: func(e *domain.LedgerEntry) bool {
		return e.Category == domain.CategoryCommission && e.WalletID == dealerWallet.ID
	}}
	f := newDistributorFixtureOn(t, store, c)
	ctx := context.Background()
	seedRate(t, f.plans, c.retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, store, c.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	assert.False(t, ok)
	assert.Contains(t, msg, errInjected.Error())
	assertBalances(t, f.balances(t), "0", "0", "0", "0")

	records, err := f.distributor.Records(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	stored, err := store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusFailed, stored.CommissionStatus)
}

func TestCommissionDistributor_StalledNotificationsDoNotUndoCredits(t *testing.T) {
	store := newMemoryStore()
	c := seedChain(t, store)
	plans := service.NewCommissionPlanService(store, nil)
	publisher := &stalledPublisher{}
	pusher := &stalledPusher{}
	distributor := service.NewCommissionDistributor(store, plans, service.NewHierarchyResolver(store.Users()), publisher, pusher,
		service.DistributorConfig{NotifyTimeout: 10 * time.Millisecond})
	seedRate(t, plans, c.retailer.ID, percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40"))
	txn := seedSuccessfulTxn(t, store, c.retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := distributor.Process(context.Background(), txn.ID)
	require.True(t, ok, msg)
	assert.Contains(t, msg, "4 credits")

	calls, withDeadline := publisher.counts()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, withDeadline)
	assert.Equal(t, 4, pusher.count())

	stored, err := store.Transactions().GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusDistributed, stored.CommissionStatus)
	assert.True(t, balanceOf(t, store, c.dealer.ID).Equal(dec("6")))
}

func TestCommissionDistributor_NoEligibleRecipients(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	// no admin exists anywhere, and only the admin share is non-zero
	retailer := seedUser(t, store, domain.RoleRetailer, nil)
	f := newDistributorFixtureOn(t, store, chain{retailer: retailer})
	seedRate(t, f.plans, retailer.ID, percentageRate(domain.ServiceRecharge, "2", "100", "0", "0", "0"))
	txn := seedSuccessfulTxn(t, store, retailer.ID, domain.ServiceRecharge, "1000")

	ok, msg := f.distributor.Process(ctx, txn.ID)
	assert.True(t, ok)
	assert.Equal(t, "no eligible recipients for this commission", msg)

	stored, err := store.Transactions().GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusSkipped, stored.CommissionStatus)
	assert.True(t, balanceOf(t, store, retailer.ID).IsZero())
	assert.Empty(t, f.publisher.types())
}
