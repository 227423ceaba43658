package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.q.QueryRow(ctx, `
		SELECT id, username, mfa_enabled, mfa_secret, created_at, updated_at
		FROM users
		WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.MFAEnabled, &u.MFASecret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, username, mfa_enabled, mfa_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.MFAEnabled, u.MFASecret, u.CreatedAt, u.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *usersRepo) LoadMFAState(ctx context.Context, userID string) (domain.MFAState, error) {
	var (
		enabled *time.Time
		secret  *string
	)
	err := r.q.QueryRow(ctx, `SELECT mfa_enabled, mfa_secret FROM users WHERE id = $1`, userID).
		Scan(&enabled, &secret)
	if err != nil {
		return domain.MFAState{}, mapNotFound(err)
	}

	state := domain.MFAState{UserID: userID, EnabledAt: enabled}
	if secret != nil {
		state.Secret = *secret
	}
	return state, nil
}

func (r *usersRepo) ClearMFAIfEnabled(ctx context.Context, userID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET mfa_enabled = NULL, mfa_secret = NULL, updated_at = now()
		WHERE id = $1 AND mfa_enabled IS NOT NULL`, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
