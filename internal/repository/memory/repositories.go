package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

var errNegativeBalance = errors.New("wallet balance cannot be negative")

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *domain.User) error {
	defer r.s.lock()()
	u.ID = r.s.st.id()
	u.CreatedAt = time.Now().UTC()
	r.s.st.users[u.ID] = *u
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) FirstActiveAdmin(_ context.Context) (*domain.User, error) {
	defer r.s.lock()()
	var found *domain.User
	for _, u := range r.s.st.users {
		if !u.Active || !u.Role.IsAdmin() {
			continue
		}
		if found == nil || u.ID < found.ID {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r userRepo) UpdatePINHash(_ context.Context, id int64, pinHash string) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PINHash = pinHash
	r.s.st.users[id] = u
	return nil
}

type walletRepo struct{ s *Store }

func (r walletRepo) Create(_ context.Context, w *domain.Wallet) error {
	defer r.s.lock()()
	if _, exists := r.s.st.walletByUser[w.UserID]; exists {
		return repository.ErrDuplicate
	}
	if w.Balance.IsNegative() {
		return errNegativeBalance
	}
	now := time.Now().UTC()
	w.ID = r.s.st.id()
	w.CreatedAt = now
	w.UpdatedAt = now
	r.s.st.wallets[w.ID] = *w
	r.s.st.walletByUser[w.UserID] = w.ID
	return nil
}

func (r walletRepo) GetByUserID(_ context.Context, userID int64) (*domain.Wallet, error) {
	defer r.s.lock()()
	id, ok := r.s.st.walletByUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	w := r.s.st.wallets[id]
	return &w, nil
}

// GetByUserIDForUpdate needs no row lock: transactions already run one at
// a time.
func (r walletRepo) GetByUserIDForUpdate(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r walletRepo) UpdateBalance(_ context.Context, walletID int64, balance decimal.Decimal) error {
	defer r.s.lock()()
	w, ok := r.s.st.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	if balance.IsNegative() {
		return errNegativeBalance
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	r.s.st.wallets[walletID] = w
	return nil
}

func (r walletRepo) List(_ context.Context, afterID int64, limit int) ([]domain.Wallet, error) {
	defer r.s.lock()()
	var wallets []domain.Wallet
	for _, w := range r.s.st.wallets {
		if w.ID > afterID {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID < wallets[j].ID })
	if limit > 0 && len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Create(_ context.Context, e *domain.LedgerEntry) error {
	defer r.s.lock()()
	if r.s.st.references[e.Reference] {
		return repository.ErrDuplicate
	}
	if _, ok := r.s.st.wallets[e.WalletID]; !ok {
		return repository.ErrNotFound
	}
	e.ID = r.s.st.id()
	e.CreatedAt = time.Now().UTC()
	r.s.st.ledger = append(r.s.st.ledger, *e)
	r.s.st.references[e.Reference] = true
	return nil
}

func (r ledgerRepo) ListByWallet(_ context.Context, walletID int64, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	defer r.s.lock()()
	var all []domain.LedgerEntry
	for i := len(r.s.st.ledger) - 1; i >= 0; i-- {
		if r.s.st.ledger[i].WalletID == walletID {
			all = append(all, r.s.st.ledger[i])
		}
	}
	total := int32(len(all))
	start := (page - 1) * pageSize
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r ledgerRepo) ListByBusinessTxn(_ context.Context, businessTxnID string) ([]domain.LedgerEntry, error) {
	defer r.s.lock()()
	var entries []domain.LedgerEntry
	for _, e := range r.s.st.ledger {
		if e.BusinessTxnID != nil && *e.BusinessTxnID == businessTxnID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r ledgerRepo) SumByWallet(_ context.Context, walletID int64) (decimal.Decimal, error) {
	defer r.s.lock()()
	sum := decimal.Zero
	for _, e := range r.s.st.ledger {
		if e.WalletID == walletID && e.Status == domain.EntryStatusSuccess {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

type planRepo struct{ s *Store }

func (r planRepo) Create(_ context.Context, p *domain.CommissionPlan) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.plans {
		if existing.Name == p.Name {
			return repository.ErrDuplicate
		}
	}
	p.ID = r.s.st.id()
	p.CreatedAt = time.Now().UTC()
	r.s.st.plans[p.ID] = *p
	return nil
}

func (r planRepo) GetByID(_ context.Context, id int64) (*domain.CommissionPlan, error) {
	defer r.s.lock()()
	p, ok := r.s.st.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r planRepo) GetByName(_ context.Context, name string) (*domain.CommissionPlan, error) {
	defer r.s.lock()()
	for _, p := range r.s.st.plans {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r planRepo) List(_ context.Context) ([]domain.CommissionPlan, error) {
	defer r.s.lock()()
	plans := make([]domain.CommissionPlan, 0, len(r.s.st.plans))
	for _, p := range r.s.st.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}

func (r planRepo) AssignToUser(_ context.Context, a *domain.UserCommissionPlan) error {
	defer r.s.lock()()
	if _, ok := r.s.st.plans[a.PlanID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.st.users[a.UserID]; !ok {
		return repository.ErrNotFound
	}
	a.AssignedAt = time.Now().UTC()
	r.s.st.assignments[a.UserID] = *a
	return nil
}

func (r planRepo) GetUserPlan(_ context.Context, userID int64) (*domain.UserCommissionPlan, error) {
	defer r.s.lock()()
	a, ok := r.s.st.assignments[userID]
	if !ok || !a.Active || !r.s.st.plans[a.PlanID].Active {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

type rateRepo struct{ s *Store }

func (r rateRepo) Save(_ context.Context, rate *domain.ServiceCommissionRate) error {
	defer r.s.lock()()
	if _, ok := r.s.st.plans[rate.PlanID]; !ok {
		return repository.ErrNotFound
	}
	rate.ID = 0
	for id, existing := range r.s.st.rates {
		if existing.Service == rate.Service && existing.PlanID == rate.PlanID {
			rate.ID = id
			break
		}
	}
	if rate.ID == 0 {
		rate.ID = r.s.st.id()
	}
	rate.UpdatedAt = time.Now().UTC()
	r.s.st.rates[rate.ID] = *rate
	return nil
}

func (r rateRepo) Get(_ context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, error) {
	defer r.s.lock()()
	for _, rate := range r.s.st.rates {
		if rate.Service == service && rate.PlanID == planID && rate.Active {
			return &rate, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r rateRepo) ListByPlan(_ context.Context, planID int64) ([]domain.ServiceCommissionRate, error) {
	defer r.s.lock()()
	var rates []domain.ServiceCommissionRate
	for _, rate := range r.s.st.rates {
		if rate.PlanID == planID {
			rates = append(rates, rate)
		}
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Service < rates[j].Service })
	return rates, nil
}

type distributionRepo struct{ s *Store }

func (r distributionRepo) Create(_ context.Context, rec *domain.CommissionDistributionRecord) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.distributions {
		if existing.BusinessTxnID == rec.BusinessTxnID && existing.Role == rec.Role {
			return repository.ErrDuplicate
		}
	}
	rec.ID = r.s.st.id()
	rec.CreatedAt = time.Now().UTC()
	r.s.st.distributions = append(r.s.st.distributions, *rec)
	return nil
}

func (r distributionRepo) Exists(_ context.Context, businessTxnID string, role domain.Role) (bool, error) {
	defer r.s.lock()()
	for _, existing := range r.s.st.distributions {
		if existing.BusinessTxnID == businessTxnID && existing.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (r distributionRepo) ListByBusinessTxn(_ context.Context, businessTxnID string) ([]domain.CommissionDistributionRecord, error) {
	defer r.s.lock()()
	var records []domain.CommissionDistributionRecord
	for _, rec := range r.s.st.distributions {
		if rec.BusinessTxnID == businessTxnID {
			records = append(records, rec)
		}
	}
	return records, nil
}

type txnRepo struct{ s *Store }

func (r txnRepo) Create(_ context.Context, t *domain.BusinessTransaction) error {
	defer r.s.lock()()
	if _, exists := r.s.st.txns[t.ID]; exists {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.s.st.txns[t.ID] = copyTxn(*t)
	return nil
}

func (r txnRepo) GetByID(_ context.Context, id string) (*domain.BusinessTransaction, error) {
	defer r.s.lock()()
	t, ok := r.s.st.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t = copyTxn(t)
	return &t, nil
}

func (r txnRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.BusinessTransaction, error) {
	return r.GetByID(ctx, id)
}

func (r txnRepo) Update(_ context.Context, t *domain.BusinessTransaction) error {
	defer r.s.lock()()
	existing, ok := r.s.st.txns[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Status = t.Status
	existing.GatewayReference = t.GatewayReference
	existing.GatewayResponse = t.GatewayResponse
	existing.CommissionStatus = t.CommissionStatus
	existing.NeedsReconciliation = t.NeedsReconciliation
	existing.UpdatedAt = time.Now().UTC()
	t.UpdatedAt = existing.UpdatedAt
	r.s.st.txns[t.ID] = copyTxn(existing)
	return nil
}

func (r txnRepo) ListByStatus(_ context.Context, status domain.TxnStatus, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error) {
	return r.filter(limit, func(t domain.BusinessTransaction) bool {
		return t.Status == status && t.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (r txnRepo) ListCommissionBacklog(_ context.Context, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error) {
	return r.filter(limit, func(t domain.BusinessTransaction) bool {
		return t.Status == domain.TxnStatusSuccess &&
			(t.CommissionStatus == domain.CommissionStatusPending || t.CommissionStatus == domain.CommissionStatusFailed) &&
			t.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (r txnRepo) filter(limit int, keep func(domain.BusinessTransaction) bool) []domain.BusinessTransaction {
	defer r.s.lock()()
	var txns []domain.BusinessTransaction
	for _, t := range r.s.st.txns {
		if keep(t) {
			txns = append(txns, copyTxn(t))
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].UpdatedAt.Before(txns[j].UpdatedAt) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns
}

func copyTxn(t domain.BusinessTransaction) domain.BusinessTransaction {
	if t.Params != nil {
		params := make(map[string]string, len(t.Params))
		for k, v := range t.Params {
			params[k] = v
		}
		t.Params = params
	}
	if t.GatewayResponse != nil {
		t.GatewayResponse = append([]byte(nil), t.GatewayResponse...)
	}
	return t
}
