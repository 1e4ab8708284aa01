package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

func seedWallet(t *testing.T, s *Store, balance string) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{Name: "retailer", Role: domain.RoleRetailer, Active: true}
	require.NoError(t, s.Users().Create(ctx, u))
	w := &domain.Wallet{UserID: u.ID, Balance: decimal.RequireFromString(balance)}
	require.NoError(t, s.Wallets().Create(ctx, w))
	return w
}

func TestWithinTx_RollbackRestoresState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w := seedWallet(t, s, "100.00")
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Wallets().UpdateBalance(ctx, w.ID, decimal.RequireFromString("40.00")))
		require.NoError(t, tx.Ledger().Create(ctx, &domain.LedgerEntry{
			WalletID: w.ID, Amount: decimal.RequireFromString("-60.00"), Type: domain.EntryTypeDebit,
			Reference: "R-1", Status: domain.EntryStatusSuccess,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Wallets().GetByUserID(ctx, w.UserID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.StringFixed(2))

	entries, total, err := s.Ledger().ListByWallet(ctx, w.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(0), total)
}

func TestWithinTx_CommitKeepsState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w := seedWallet(t, s, "100.00")

	err := s.WithinTx(ctx, func(tx repository.Store) error {
		return tx.Wallets().UpdateBalance(ctx, w.ID, decimal.RequireFromString("75.50"))
	})
	require.NoError(t, err)

	got, err := s.Wallets().GetByUserID(ctx, w.UserID)
	require.NoError(t, err)
	assert.Equal(t, "75.50", got.Balance.StringFixed(2))
}

func TestWallet_NegativeBalanceRejected(t *testing.T) {
	s := NewStore()
	w := seedWallet(t, s, "1.00")

	err := s.Wallets().UpdateBalance(context.Background(), w.ID, decimal.RequireFromString("-0.01"))
	assert.Error(t, err)
}

func TestWallet_OnePerUser(t *testing.T) {
	s := NewStore()
	w := seedWallet(t, s, "0")

	err := s.Wallets().Create(context.Background(), &domain.Wallet{UserID: w.UserID})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestDistribution_UniquePerRole(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := &domain.CommissionDistributionRecord{BusinessTxnID: "txn-1", Role: domain.RoleDealer, Amount: decimal.NewFromInt(4)}
	require.NoError(t, s.Distributions().Create(ctx, rec))

	err := s.Distributions().Create(ctx, &domain.CommissionDistributionRecord{BusinessTxnID: "txn-1", Role: domain.RoleDealer})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	exists, err := s.Distributions().Exists(ctx, "txn-1", domain.RoleDealer)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Distributions().Exists(ctx, "txn-1", domain.RoleMaster)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_ListByWalletNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w := seedWallet(t, s, "0")

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Ledger().Create(ctx, &domain.LedgerEntry{
			WalletID: w.ID, Amount: decimal.NewFromInt(int64(i)), Type: domain.EntryTypeCredit,
			Reference: fmt.Sprintf("R-%d", i), Status: domain.EntryStatusSuccess,
		}))
	}

	page, total, err := s.Ledger().ListByWallet(ctx, w.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "R-5", page[0].Reference)
	assert.Equal(t, "R-4", page[1].Reference)

	sum, err := s.Ledger().SumByWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", sum.String())
}

func TestRates_SaveReplacesExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	plan := &domain.CommissionPlan{Name: "gold", DisplayName: "Gold", Active: true}
	require.NoError(t, s.Plans().Create(ctx, plan))

	first := &domain.ServiceCommissionRate{Service: domain.ServiceRecharge, PlanID: plan.ID, Value: decimal.NewFromInt(1), Active: true}
	require.NoError(t, s.Rates().Save(ctx, first))
	second := &domain.ServiceCommissionRate{Service: domain.ServiceRecharge, PlanID: plan.ID, Value: decimal.NewFromInt(2), Active: true}
	require.NoError(t, s.Rates().Save(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	rates, err := s.Rates().ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "2", rates[0].Value.String())
}
