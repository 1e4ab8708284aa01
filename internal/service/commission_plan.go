package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/cache"
	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/utils"
)

var hundred = decimal.NewFromInt(100)

type commissionPlanService struct {
	store repository.Store
	cache cache.RateCache
}

func NewCommissionPlanService(store repository.Store, rateCache cache.RateCache) CommissionPlanService {
	if rateCache == nil {
		rateCache = cache.NewNopRateCache()
	}
	return &commissionPlanService{store: store, cache: rateCache}
}

func (s *commissionPlanService) CreatePlan(ctx context.Context, plan *domain.CommissionPlan) error {
	plan.Name = strings.ToLower(strings.TrimSpace(plan.Name))
	if plan.Name == "" {
		return errors.New("plan name is required")
	}
	if plan.DisplayName == "" {
		plan.DisplayName = plan.Name
	}
	if err := s.store.Plans().Create(ctx, plan); err != nil {
		return fmt.Errorf("failed to create plan %s: %w", plan.Name, err)
	}
	logger.Info("Commission plan created", "plan_id", plan.ID, "name", plan.Name)
	return nil
}

func (s *commissionPlanService) ListPlans(ctx context.Context) ([]domain.CommissionPlan, error) {
	return s.store.Plans().List(ctx)
}

func (s *commissionPlanService) AssignPlan(ctx context.Context, userID, planID, assignedBy int64) error {
	plan, err := s.store.Plans().GetByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to load plan %d: %w", planID, err)
	}
	if !plan.Active {
		return fmt.Errorf("plan %s is not active", plan.Name)
	}
	err = s.store.Plans().AssignToUser(ctx, &domain.UserCommissionPlan{
		UserID:     userID,
		PlanID:     planID,
		AssignedBy: assignedBy,
		Active:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to assign plan %d to user %d: %w", planID, userID, err)
	}
	logger.Info("Commission plan assigned", "user_id", userID, "plan_id", planID, "assigned_by", assignedBy)
	return nil
}

func (s *commissionPlanService) UserPlan(ctx context.Context, userID int64) (*domain.UserCommissionPlan, error) {
	a, err := s.store.Plans().GetUserPlan(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoCommissionPlan
		}
		return nil, err
	}
	return a, nil
}

func (s *commissionPlanService) SaveRate(ctx context.Context, rate *domain.ServiceCommissionRate) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	if err := s.store.Rates().Save(ctx, rate); err != nil {
		return fmt.Errorf("failed to save %s rate for plan %d: %w", rate.Service, rate.PlanID, err)
	}
	s.cache.Invalidate(ctx, rate.Service, rate.PlanID)
	logger.Info("Commission rate saved", "rate_id", rate.ID, "service", rate.Service, "plan_id", rate.PlanID,
		"basis", rate.Basis, "value", rate.Value)
	return nil
}

// GetRate reads through the rate cache.
func (s *commissionPlanService) GetRate(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, error) {
	if rate, ok := s.cache.Get(ctx, service, planID); ok {
		return rate, nil
	}
	rate, err := s.store.Rates().Get(ctx, service, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w for %s on plan %d", ErrNoRateConfigured, service, planID)
		}
		return nil, err
	}
	s.cache.Set(ctx, rate)
	return rate, nil
}

func (s *commissionPlanService) ListRates(ctx context.Context, planID int64) ([]domain.ServiceCommissionRate, error) {
	return s.store.Rates().ListByPlan(ctx, planID)
}

// ValidateRate enforces the share law: percentage-basis shares sum to
// exactly 100, fixed-basis shares to at most 100.
func ValidateRate(rate *domain.ServiceCommissionRate) error {
	if !rate.Service.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownService, rate.Service)
	}
	if rate.Value.IsNegative() {
		return fmt.Errorf("%w: commission value must not be negative", ErrInvalidAmount)
	}
	for _, role := range domain.ShareRoles {
		share := rate.Share(role)
		if share.IsNegative() || share.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s share %s is outside 0..100", ErrInvalidShares, role, share)
		}
	}

	total := rate.ShareTotal()
	switch rate.Basis {
	case domain.CommissionBasisPercentage:
		if !total.Equal(hundred) {
			return fmt.Errorf("%w: got %s", ErrInvalidShares, total)
		}
	case domain.CommissionBasisFixed:
		if total.GreaterThan(hundred) {
			return fmt.Errorf("%w: fixed shares total %s exceeds 100", ErrInvalidShares, total)
		}
	default:
		return fmt.Errorf("unknown commission basis %q", rate.Basis)
	}

	if rate.MinAmount.Valid && rate.MaxAmount.Valid && rate.MinAmount.Decimal.GreaterThan(rate.MaxAmount.Decimal) {
		return fmt.Errorf("%w: min %s is above max %s", ErrInvalidAmount, rate.MinAmount.Decimal, rate.MaxAmount.Decimal)
	}
	return nil
}

// CalculateCommission returns the unrounded commission pool for amount.
func CalculateCommission(rate *domain.ServiceCommissionRate, amount decimal.Decimal) decimal.Decimal {
	if rate.Basis == domain.CommissionBasisFixed {
		return rate.Value
	}
	return utils.Percent(amount, rate.Value)
}
