package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/service"
)

func TestWalletService_Open(t *testing.T) {
	store := newMemoryStore()
	svc := service.NewWalletService(store)
	ctx := context.Background()

	u := &domain.User{Name: "walk-in", Role: domain.RoleRetailer, Active: true}
	require.NoError(t, store.Users().Create(ctx, u))

	w, err := svc.Open(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	again, err := svc.Open(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	_, err = svc.Open(ctx, 9999)
	assert.Error(t, err)
}

func TestWalletService_CreditAndDebit(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ledger := service.NewLedgerService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)

	balance, err := wallets.Credit(ctx, service.CreditRequest{
		UserID: u.ID, Amount: dec("500.00"), Category: domain.CategoryTopup, ActorID: 1,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("500")))

	balance, err = wallets.Debit(ctx, service.DebitRequest{
		UserID: u.ID, Amount: dec("120.50"), Fee: dec("2.25"), PIN: testPIN, Category: string(domain.ServiceRecharge),
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("377.25")), "got %s", balance)

	entries, total, err := ledger.List(ctx, u.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(dec("-122.75")))
	assert.True(t, entries[0].BalanceAfter.Equal(dec("377.25")))
	assert.NotEmpty(t, entries[0].Reference)

	rec, err := ledger.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.True(t, rec.LedgerSum.Equal(balance))
}

func TestWalletService_DebitRejections(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)
	fund(t, wallets, u.ID, "100")

	tests := []struct {
		name    string
		req     service.DebitRequest
		wantErr error
	}{
		{
			name:    "wrong PIN",
			req:     service.DebitRequest{UserID: u.ID, Amount: dec("10"), PIN: "0000", Category: "dmt"},
			wantErr: service.ErrInvalidPIN,
		},
		{
			name:    "insufficient balance",
			req:     service.DebitRequest{UserID: u.ID, Amount: dec("99"), Fee: dec("1.01"), PIN: testPIN, Category: "dmt"},
			wantErr: service.ErrInsufficientBalance,
		},
		{
			name:    "sub-paisa amount",
			req:     service.DebitRequest{UserID: u.ID, Amount: dec("1.005"), PIN: testPIN, Category: "dmt"},
			wantErr: service.ErrInvalidAmount,
		},
		{
			name:    "negative fee",
			req:     service.DebitRequest{UserID: u.ID, Amount: dec("1"), Fee: dec("-1"), PIN: testPIN, Category: "dmt"},
			wantErr: service.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wallets.Debit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, balanceOf(t, store, u.ID).Equal(dec("100")))
		})
	}

	_, total, err := service.NewLedgerService(store).List(ctx, u.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total, "only the top-up is on the ledger")
}

func TestWalletService_DebitExactBalance(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	u := seedUser(t, store, domain.RoleRetailer, nil)
	fund(t, wallets, u.ID, "10.00")

	balance, err := wallets.Debit(context.Background(), service.DebitRequest{
		UserID: u.ID, Amount: dec("10.00"), PIN: testPIN, Category: "aeps",
	})
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestWalletService_ZeroDebitIsADebit(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ledger := service.NewLedgerService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)
	fund(t, wallets, u.ID, "25.00")

	balance, err := wallets.Debit(ctx, service.DebitRequest{
		UserID: u.ID, Amount: decimal.Zero, PIN: testPIN, Category: string(domain.ServiceRecharge),
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("25")))

	entries, _, err := ledger.List(ctx, u.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTypeDebit, entries[0].Type)
	assert.Equal(t, string(domain.ServiceRecharge), entries[0].Category)
	assert.True(t, entries[0].Amount.IsZero())
}

func TestWalletService_CreditRequiresPositiveAmount(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	u := seedUser(t, store, domain.RoleRetailer, nil)

	_, err := wallets.Credit(context.Background(), service.CreditRequest{UserID: u.ID, Amount: decimal.Zero, Category: "topup"})
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}

func TestWalletService_MissingWallet(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ctx := context.Background()
	u := &domain.User{Name: "no-wallet", Role: domain.RoleRetailer, Active: true}
	require.NoError(t, store.Users().Create(ctx, u))

	_, err := wallets.Balance(ctx, u.ID)
	assert.ErrorIs(t, err, service.ErrWalletNotFound)

	_, err = wallets.Credit(ctx, service.CreditRequest{UserID: u.ID, Amount: dec("5"), Category: "topup"})
	assert.ErrorIs(t, err, service.ErrWalletNotFound)
}

func TestWalletService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)
	fund(t, wallets, u.ID, "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wallets.Debit(ctx, service.DebitRequest{
				UserID: u.ID, Amount: dec("10"), PIN: testPIN, Category: "recharge",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, service.ErrInsufficientBalance)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.True(t, balanceOf(t, store, u.ID).IsZero())

	rec, err := service.NewLedgerService(store).Reconcile(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}

func TestWalletService_PIN(t *testing.T) {
	store := newMemoryStore()
	wallets := service.NewWalletService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)

	ok, err := wallets.VerifyPIN(ctx, u.ID, testPIN)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, wallets.SetPIN(ctx, u.ID, "987654"))
	ok, err = wallets.VerifyPIN(ctx, u.ID, testPIN)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = wallets.VerifyPIN(ctx, u.ID, "987654")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, wallets.SetPIN(ctx, u.ID, "12ab"))

	_, err = wallets.VerifyPIN(ctx, 424242, testPIN)
	assert.Error(t, err)
}

func TestLedgerService_RecordOnlyFailedEntries(t *testing.T) {
	store := newMemoryStore()
	ledger := service.NewLedgerService(store)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)
	w, err := store.Wallets().GetByUserID(ctx, u.ID)
	require.NoError(t, err)

	err = ledger.Record(ctx, &domain.LedgerEntry{
		WalletID: w.ID, Amount: dec("5"), Type: domain.EntryTypeCredit, Category: "refund", Status: domain.EntryStatusSuccess,
	})
	assert.Error(t, err)

	err = ledger.Record(ctx, &domain.LedgerEntry{
		WalletID: w.ID, Amount: dec("-5"), Type: domain.EntryTypeCredit, Category: "refund", Status: domain.EntryStatusFailed,
	})
	assert.Error(t, err, "credit with a negative amount")

	require.NoError(t, ledger.Record(ctx, &domain.LedgerEntry{
		WalletID: w.ID, Amount: dec("5"), Type: domain.EntryTypeCredit, Category: "refund", Status: domain.EntryStatusFailed,
	}))

	rec, err := ledger.Reconcile(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "failed entries do not count toward the balance")
}
