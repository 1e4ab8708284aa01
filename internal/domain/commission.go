package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionBasis string

const (
	CommissionBasisPercentage CommissionBasis = "percentage"
	CommissionBasisFixed      CommissionBasis = "fixed"
)

// ShareRoles lists the roles that receive a commission split, in the order
// they are credited.
var ShareRoles = []Role{RoleAdmin, RoleMaster, RoleDealer, RoleRetailer}

type CommissionPlan struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"` // tier key, e.g. platinum, gold, silver
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type ServiceCommissionRate struct {
	ID            int64               `json:"id"`
	Service       ServiceID           `json:"service"`
	PlanID        int64               `json:"plan_id"`
	Basis         CommissionBasis     `json:"basis"`
	Value         decimal.Decimal     `json:"value"`
	AdminShare    decimal.Decimal     `json:"admin_share"`
	MasterShare   decimal.Decimal     `json:"master_share"`
	DealerShare   decimal.Decimal     `json:"dealer_share"`
	RetailerShare decimal.Decimal     `json:"retailer_share"`
	MinAmount     decimal.NullDecimal `json:"min_amount"`
	MaxAmount     decimal.NullDecimal `json:"max_amount"`
	Active        bool                `json:"active"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Share returns the distribution percentage configured for role. Roles that
// do not take a split return zero.
func (r *ServiceCommissionRate) Share(role Role) decimal.Decimal {
	switch role {
	case RoleAdmin:
		return r.AdminShare
	case RoleMaster:
		return r.MasterShare
	case RoleDealer:
		return r.DealerShare
	case RoleRetailer:
		return r.RetailerShare
	}
	return decimal.Zero
}

func (r *ServiceCommissionRate) ShareTotal() decimal.Decimal {
	return r.AdminShare.Add(r.MasterShare).Add(r.DealerShare).Add(r.RetailerShare)
}

// Eligible reports whether amount falls inside the optional min/max bounds.
func (r *ServiceCommissionRate) Eligible(amount decimal.Decimal) bool {
	if r.MinAmount.Valid && amount.LessThan(r.MinAmount.Decimal) {
		return false
	}
	if r.MaxAmount.Valid && amount.GreaterThan(r.MaxAmount.Decimal) {
		return false
	}
	return true
}

type UserCommissionPlan struct {
	UserID     int64     `json:"user_id"`
	PlanID     int64     `json:"plan_id"`
	AssignedBy int64     `json:"assigned_by"`
	Active     bool      `json:"active"`
	AssignedAt time.Time `json:"assigned_at"`
}

type CommissionDistributionRecord struct {
	ID             int64           `json:"id"`
	BusinessTxnID  string          `json:"business_txn_id"`
	RateID         int64           `json:"rate_id"`
	RecipientID    int64           `json:"recipient_id"`
	Role           Role            `json:"role"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Reference      string          `json:"reference"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Recipients is the resolved hierarchy for one initiating retailer. Any
// field may be nil when that level of the chain is absent.
type Recipients struct {
	Retailer *User
	Dealer   *User
	Master   *User
	Admin    *User
}

func (r *Recipients) For(role Role) *User {
	switch role {
	case RoleRetailer:
		return r.Retailer
	case RoleDealer:
		return r.Dealer
	case RoleMaster:
		return r.Master
	case RoleAdmin:
		return r.Admin
	}
	return nil
}

// Set assigns the recipient for a share role.
func (r *Recipients) Set(role Role, u *User) {
	switch role {
	case RoleRetailer:
		r.Retailer = u
	case RoleDealer:
		r.Dealer = u
	case RoleMaster:
		r.Master = u
	case RoleAdmin:
		r.Admin = u
	}
}
