package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/service"
)

// seedFile is the plan catalogue loaded by `ledgerctl seed-plans`.
type seedFile struct {
	Plans []seedPlan `yaml:"plans"`
}

type seedPlan struct {
	Name        string     `yaml:"name"`
	DisplayName string     `yaml:"display_name"`
	Rates       []seedRate `yaml:"rates"`
}

type seedRate struct {
	Service   domain.ServiceID                `yaml:"service"`
	Basis     domain.CommissionBasis          `yaml:"basis"`
	Value     decimal.Decimal                 `yaml:"value"`
	Shares    map[domain.Role]decimal.Decimal `yaml:"shares"`
	MinAmount *decimal.Decimal                `yaml:"min_amount"`
	MaxAmount *decimal.Decimal                `yaml:"max_amount"`
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

func (r seedRate) toDomain(planID int64) *domain.ServiceCommissionRate {
	rate := &domain.ServiceCommissionRate{
		Service:       r.Service,
		PlanID:        planID,
		Basis:         r.Basis,
		Value:         r.Value,
		AdminShare:    r.Shares[domain.RoleAdmin],
		MasterShare:   r.Shares[domain.RoleMaster],
		DealerShare:   r.Shares[domain.RoleDealer],
		RetailerShare: r.Shares[domain.RoleRetailer],
		Active:        true,
	}
	if r.MinAmount != nil {
		rate.MinAmount = decimal.NewNullDecimal(*r.MinAmount)
	}
	if r.MaxAmount != nil {
		rate.MaxAmount = decimal.NewNullDecimal(*r.MaxAmount)
	}
	return rate
}

// seedPlans creates missing plans and upserts every rate. Running it twice
// leaves the catalogue unchanged.
func seedPlans(ctx context.Context, store repository.Store, plans service.CommissionPlanService, f *seedFile) (int, error) {
	saved := 0
	for _, p := range f.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		plan, err := store.Plans().GetByName(ctx, name)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			plan = &domain.CommissionPlan{Name: name, DisplayName: p.DisplayName, Active: true}
			if err := plans.CreatePlan(ctx, plan); err != nil {
				return saved, err
			}
		case err != nil:
			return saved, fmt.Errorf("failed to look up plan %s: %w", p.Name, err)
		}

		for _, r := range p.Rates {
			if err := plans.SaveRate(ctx, r.toDomain(plan.ID)); err != nil {
				return saved, fmt.Errorf("plan %s: %w", p.Name, err)
			}
			saved++
		}
	}
	return saved, nil
}
