package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres, memory) implement this and expose sub-repositories so that a
// transaction-scoped Store can hand out the same repos.
type Store interface {
	Users() Users
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is the view of the store handed to WithTx callbacks. Nested
// transactions are not supported.
type Tx interface {
	Users() Users
	AuditEvents() AuditEvents
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// CreateUser inserts a new user. MFA columns are copied as given so
	// accounts synced from the auth service keep their enrollment.
	CreateUser(ctx context.Context, u domain.User) error

	// LoadMFAState returns the enrollment state for a user.
	// Returns ErrNotFound when the user does not exist.
	LoadMFAState(ctx context.Context, userID string) (domain.MFAState, error)

	// ClearMFAIfEnabled clears mfa_secret and mfa_enabled in a single
	// conditional update. It reports false, with a nil error, when the row
	// was no longer enabled at the time of the update.
	ClearMFAIfEnabled(ctx context.Context, userID string) (bool, error)
}

type AuditEvents interface {
	// CreateAuditEvent appends an event for a user.
	CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error

	// ListUserAuditEvents returns a user's events, oldest first.
	ListUserAuditEvents(ctx context.Context, userID string) ([]domain.AuditEvent, error)
}
