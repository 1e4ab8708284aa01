package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/service"
)

func TestValidateRate(t *testing.T) {
	fixed := func(admin, master, dealer, retailer string) domain.ServiceCommissionRate {
		r := percentageRate(domain.ServiceDMT, "5", admin, master, dealer, retailer)
		r.Basis = domain.CommissionBasisFixed
		return r
	}

	tests := []struct {
		name    string
		rate    domain.ServiceCommissionRate
		wantErr error
	}{
		{name: "percentage shares sum to 100", rate: percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")},
		{name: "fractional shares", rate: percentageRate(domain.ServiceRecharge, "1.5", "10", "15.5", "34.5", "40")},
		{name: "percentage shares short of 100", rate: percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "39"), wantErr: service.ErrInvalidShares},
		{name: "percentage shares over 100", rate: percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "41"), wantErr: service.ErrInvalidShares},
		{name: "share above 100", rate: percentageRate(domain.ServiceRecharge, "2", "120", "-20", "0", "0"), wantErr: service.ErrInvalidShares},
		{name: "fixed shares under 100", rate: fixed("10", "20", "30", "30")},
		{name: "fixed shares over 100", rate: fixed("10", "20", "30", "50"), wantErr: service.ErrInvalidShares},
		{name: "negative value", rate: percentageRate(domain.ServiceRecharge, "-1", "10", "20", "30", "40"), wantErr: service.ErrInvalidAmount},
		{name: "unknown service", rate: percentageRate("lottery", "2", "10", "20", "30", "40"), wantErr: service.ErrUnknownService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateRate(&tt.rate)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("min above max", func(t *testing.T) {
		r := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")
		r.MinAmount = decimal.NewNullDecimal(dec("500"))
		r.MaxAmount = decimal.NewNullDecimal(dec("100"))
		assert.ErrorIs(t, service.ValidateRate(&r), service.ErrInvalidAmount)
	})

	t.Run("unknown basis", func(t *testing.T) {
		r := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")
		r.Basis = "tiered"
		assert.Error(t, service.ValidateRate(&r))
	})
}

func TestCalculateCommission(t *testing.T) {
	pct := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")
	assert.True(t, service.CalculateCommission(&pct, dec("1000")).Equal(dec("20")))
	assert.True(t, service.CalculateCommission(&pct, dec("333.33")).Equal(dec("6.6666")))

	fixed := pct
	fixed.Basis = domain.CommissionBasisFixed
	fixed.Value = dec("7.50")
	assert.True(t, service.CalculateCommission(&fixed, dec("1000")).Equal(dec("7.5")))
	assert.True(t, service.CalculateCommission(&fixed, dec("10")).Equal(dec("7.5")))
}

func TestCommissionPlanService_Plans(t *testing.T) {
	store := newMemoryStore()
	svc := service.NewCommissionPlanService(store, nil)
	ctx := context.Background()
	u := seedUser(t, store, domain.RoleRetailer, nil)

	_, err := svc.UserPlan(ctx, u.ID)
	assert.ErrorIs(t, err, service.ErrNoCommissionPlan)

	gold := &domain.CommissionPlan{Name: "  Gold ", Active: true}
	require.NoError(t, svc.CreatePlan(ctx, gold))
	assert.Equal(t, "gold", gold.Name)
	assert.Equal(t, "gold", gold.DisplayName)

	assert.Error(t, svc.CreatePlan(ctx, &domain.CommissionPlan{Name: " "}))

	retired := &domain.CommissionPlan{Name: "retired", Active: false}
	require.NoError(t, svc.CreatePlan(ctx, retired))
	assert.Error(t, svc.AssignPlan(ctx, u.ID, retired.ID, 1))

	require.NoError(t, svc.AssignPlan(ctx, u.ID, gold.ID, 1))
	a, err := svc.UserPlan(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, gold.ID, a.PlanID)

	plans, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestCommissionPlanService_Rates(t *testing.T) {
	store := newMemoryStore()
	svc := service.NewCommissionPlanService(store, nil)
	ctx := context.Background()

	plan := &domain.CommissionPlan{Name: "silver", Active: true}
	require.NoError(t, svc.CreatePlan(ctx, plan))

	_, err := svc.GetRate(ctx, domain.ServiceRecharge, plan.ID)
	assert.ErrorIs(t, err, service.ErrNoRateConfigured)

	bad := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "30")
	bad.PlanID = plan.ID
	assert.ErrorIs(t, svc.SaveRate(ctx, &bad), service.ErrInvalidShares)

	rate := percentageRate(domain.ServiceRecharge, "2", "10", "20", "30", "40")
	rate.PlanID = plan.ID
	rate.Active = true
	require.NoError(t, svc.SaveRate(ctx, &rate))

	updated := percentageRate(domain.ServiceRecharge, "2.5", "25", "25", "25", "25")
	updated.PlanID = plan.ID
	updated.Active = true
	require.NoError(t, svc.SaveRate(ctx, &updated))
	assert.Equal(t, rate.ID, updated.ID, "saving the same service and plan updates in place")

	got, err := svc.GetRate(ctx, domain.ServiceRecharge, plan.ID)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(dec("2.5")))

	rates, err := svc.ListRates(ctx, plan.ID)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
}

func TestHierarchyResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("full chain", func(t *testing.T) {
		store := newMemoryStore()
		c := seedChain(t, store)

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, c.retailer)
		require.NoError(t, err)
		assert.Equal(t, c.retailer.ID, r.Retailer.ID)
		assert.Equal(t, c.dealer.ID, r.Dealer.ID)
		assert.Equal(t, c.master.ID, r.Master.ID)
		assert.Equal(t, c.admin.ID, r.Admin.ID)
	})

	t.Run("retailer onboarded by admin falls back for admin only", func(t *testing.T) {
		store := newMemoryStore()
		admin := seedUser(t, store, domain.RoleAdmin, nil)
		retailer := seedUser(t, store, domain.RoleRetailer, admin)

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, retailer)
		require.NoError(t, err)
		assert.Nil(t, r.Dealer)
		assert.Nil(t, r.Master)
		require.NotNil(t, r.Admin)
		assert.Equal(t, admin.ID, r.Admin.ID)
	})

	t.Run("dealer without master", func(t *testing.T) {
		store := newMemoryStore()
		admin := seedUser(t, store, domain.RoleAdmin, nil)
		dealer := seedUser(t, store, domain.RoleDealer, nil)
		retailer := seedUser(t, store, domain.RoleRetailer, dealer)

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, retailer)
		require.NoError(t, err)
		assert.Equal(t, dealer.ID, r.Dealer.ID)
		assert.Nil(t, r.Master)
		assert.Equal(t, admin.ID, r.Admin.ID)
	})

	t.Run("superadmin parent counts as admin", func(t *testing.T) {
		store := newMemoryStore()
		fallback := seedUser(t, store, domain.RoleAdmin, nil)
		super := seedUser(t, store, domain.RoleSuperAdmin, nil)
		master := seedUser(t, store, domain.RoleMaster, super)
		dealer := seedUser(t, store, domain.RoleDealer, master)
		retailer := seedUser(t, store, domain.RoleRetailer, dealer)

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, retailer)
		require.NoError(t, err)
		assert.Equal(t, super.ID, r.Admin.ID)
		assert.NotEqual(t, fallback.ID, r.Admin.ID)
	})

	t.Run("no admin anywhere", func(t *testing.T) {
		store := newMemoryStore()
		retailer := seedUser(t, store, domain.RoleRetailer, nil)

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, retailer)
		require.NoError(t, err)
		assert.Nil(t, r.Admin)
		assert.Equal(t, retailer.ID, r.For(domain.RoleRetailer).ID)
	})

	t.Run("dangling parent", func(t *testing.T) {
		store := newMemoryStore()
		admin := seedUser(t, store, domain.RoleAdmin, nil)
		ghost := int64(777)
		retailer := &domain.User{Name: "orphan", Role: domain.RoleRetailer, CreatedBy: &ghost, Active: true}
		require.NoError(t, store.Users().Create(ctx, retailer))

		r, err := service.NewHierarchyResolver(store.Users()).Resolve(ctx, retailer)
		require.NoError(t, err)
		assert.Nil(t, r.Dealer)
		assert.Equal(t, admin.ID, r.Admin.ID)
	})
}
