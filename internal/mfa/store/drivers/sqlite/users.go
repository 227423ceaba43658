package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/sqlite/gen"
)

type usersRepo struct {
	q *gen.Queries
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row, err := r.q.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	err := r.q.CreateUser(ctx, gen.CreateUserParams{
		ID:         u.ID,
		Username:   u.Username,
		MfaEnabled: mapOptionalTime(u.MFAEnabled),
		MfaSecret:  mapStringNull(u.MFASecret),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
	return mapUniqueViolation(err)
}

func (r *usersRepo) LoadMFAState(ctx context.Context, userID string) (domain.MFAState, error) {
	row, err := r.q.GetUserMFAInfo(ctx, userID)
	if err != nil {
		return domain.MFAState{}, mapNotFound(err)
	}

	return domain.MFAState{
		UserID:    userID,
		Secret:    row.MfaSecret.String,
		EnabledAt: mapNullTimePtr(row.MfaEnabled),
	}, nil
}

func (r *usersRepo) ClearMFAIfEnabled(ctx context.Context, userID string) (bool, error) {
	n, err := r.q.ClearUserMFA(ctx, userID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
