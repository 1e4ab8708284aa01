package service

import (
	"context"
	"errors"
	"fmt"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
)

// hierarchyHop fills one share role from the onboarding parent of the
// previously resolved user.
type hierarchyHop struct {
	role    domain.Role
	accepts func(domain.Role) bool
}

func roleIs(want domain.Role) func(domain.Role) bool {
	return func(r domain.Role) bool { return r == want }
}

// hierarchyWalk runs retailer -> dealer -> master -> admin. A parent with
// the wrong role ends the walk, leaving that level and every level above
// it unresolved.
var hierarchyWalk = []hierarchyHop{
	{role: domain.RoleDealer, accepts: roleIs(domain.RoleDealer)},
	{role: domain.RoleMaster, accepts: roleIs(domain.RoleMaster)},
	{role: domain.RoleAdmin, accepts: domain.Role.IsAdmin},
}

type hierarchyResolver struct {
	users repository.UserRepository
}

func NewHierarchyResolver(users repository.UserRepository) HierarchyResolver {
	return &hierarchyResolver{users: users}
}

func (r *hierarchyResolver) Resolve(ctx context.Context, retailer *domain.User) (*domain.Recipients, error) {
	recipients := &domain.Recipients{Retailer: retailer}

	current := retailer
	for _, hop := range hierarchyWalk {
		if current.CreatedBy == nil {
			break
		}
		parent, err := r.users.GetByID(ctx, *current.CreatedBy)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("Onboarding parent does not exist", "user_id", current.ID, "created_by", *current.CreatedBy)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load user %d: %w", *current.CreatedBy, err)
		}
		if !hop.accepts(parent.Role) {
			logger.Debug("Hierarchy walk stopped on role mismatch", "want", hop.role, "got", parent.Role, "user_id", parent.ID)
			break
		}
		recipients.Set(hop.role, parent)
		current = parent
	}

	if recipients.Admin == nil {
		admin, err := r.users.FirstActiveAdmin(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			logger.Warn("No active admin to receive the admin share")
		case err != nil:
			return nil, fmt.Errorf("failed to find fallback admin: %w", err)
		default:
			recipients.Admin = admin
		}
	}
	return recipients, nil
}
