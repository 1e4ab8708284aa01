// Package memory keeps the whole ledger in process memory. It backs the
// "memory" database driver and the service tests. Transactions are
// serialized and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

type state struct {
	nextID        int64
	users         map[int64]domain.User
	wallets       map[int64]domain.Wallet
	walletByUser  map[int64]int64
	ledger        []domain.LedgerEntry
	references    map[string]bool
	plans         map[int64]domain.CommissionPlan
	assignments   map[int64]domain.UserCommissionPlan
	rates         map[int64]domain.ServiceCommissionRate
	distributions []domain.CommissionDistributionRecord
	txns          map[string]domain.BusinessTransaction
}

func newState() *state {
	return &state{
		users:        make(map[int64]domain.User),
		wallets:      make(map[int64]domain.Wallet),
		walletByUser: make(map[int64]int64),
		references:   make(map[string]bool),
		plans:        make(map[int64]domain.CommissionPlan),
		assignments:  make(map[int64]domain.UserCommissionPlan),
		rates:        make(map[int64]domain.ServiceCommissionRate),
		txns:         make(map[string]domain.BusinessTransaction),
	}
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// clone copies every table. Stored values are never mutated in place, so
// copying the structs is enough.
func (st *state) clone() *state {
	c := &state{
		nextID:        st.nextID,
		users:         make(map[int64]domain.User, len(st.users)),
		wallets:       make(map[int64]domain.Wallet, len(st.wallets)),
		walletByUser:  make(map[int64]int64, len(st.walletByUser)),
		ledger:        append([]domain.LedgerEntry(nil), st.ledger...),
		references:    make(map[string]bool, len(st.references)),
		plans:         make(map[int64]domain.CommissionPlan, len(st.plans)),
		assignments:   make(map[int64]domain.UserCommissionPlan, len(st.assignments)),
		rates:         make(map[int64]domain.ServiceCommissionRate, len(st.rates)),
		distributions: append([]domain.CommissionDistributionRecord(nil), st.distributions...),
		txns:          make(map[string]domain.BusinessTransaction, len(st.txns)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.walletByUser {
		c.walletByUser[k] = v
	}
	for k, v := range st.references {
		c.references[k] = v
	}
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.assignments {
		c.assignments[k] = v
	}
	for k, v := range st.rates {
		c.rates[k] = v
	}
	for k, v := range st.txns {
		c.txns[k] = v
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

// lock guards a single operation on the root store. Inside WithinTx the
// lock is already held.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository                       { return userRepo{s} }
func (s *Store) Wallets() repository.WalletRepository                   { return walletRepo{s} }
func (s *Store) Ledger() repository.LedgerRepository                    { return ledgerRepo{s} }
func (s *Store) Plans() repository.CommissionPlanRepository             { return planRepo{s} }
func (s *Store) Rates() repository.CommissionRateRepository             { return rateRepo{s} }
func (s *Store) Distributions() repository.DistributionRepository       { return distributionRepo{s} }
func (s *Store) Transactions() repository.BusinessTransactionRepository { return txnRepo{s} }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			*s.st = *snapshot
			panic(p)
		}
	}()

	if err := fn(&Store{mu: s.mu, st: s.st, inTx: true}); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}
