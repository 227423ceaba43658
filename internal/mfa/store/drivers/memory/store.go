// Package memory is an in-process store driver for tests and local
// development. WithTx serialises writers on a single lock and applies staged
// writes only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
)

type Store struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	events map[string][]domain.AuditEvent
}

func NewStore() *Store {
	return &Store{
		users:  make(map[string]domain.User),
		events: make(map[string][]domain.AuditEvent),
	}
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Users() store.Users             { return &usersRepo{s: s} }
func (s *Store) AuditEvents() store.AuditEvents { return &auditEventsRepo{s: s} }

// WithTx runs fn against a staging view. Reads see committed state merged with
// the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{
		s:      s,
		users:  make(map[string]domain.User),
		events: make(map[string][]domain.AuditEvent),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, evs := range tx.events {
		s.events[id] = append(s.events[id], evs...)
	}
	return nil
}

type txStore struct {
	s      *Store
	users  map[string]domain.User
	events map[string][]domain.AuditEvent
}

func (t *txStore) Users() store.Users             { return &usersRepo{s: t.s, tx: t} }
func (t *txStore) AuditEvents() store.AuditEvents { return &auditEventsRepo{s: t.s, tx: t} }

// usersRepo reads and writes through tx when set; the store lock is then
// already held by WithTx.
type usersRepo struct {
	s  *Store
	tx *txStore
}

func (r *usersRepo) lookup(id string) (domain.User, bool) {
	if r.tx != nil {
		if u, ok := r.tx.users[id]; ok {
			return u, true
		}
	}
	u, ok := r.s.users[id]
	return u, ok
}

func (r *usersRepo) put(u domain.User) {
	if r.tx != nil {
		r.tx.users[u.ID] = u
		return
	}
	r.s.users[u.ID] = u
}

func (r *usersRepo) rlock() func() {
	if r.tx != nil {
		return func() {}
	}
	r.s.mu.RLock()
	return r.s.mu.RUnlock
}

func (r *usersRepo) lock() func() {
	if r.tx != nil {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	defer r.rlock()()

	u, ok := r.lookup(id)
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lock()()

	if _, ok := r.lookup(u.ID); ok {
		return store.ErrAlreadyExists
	}
	for _, existing := range r.all() {
		if existing.Username == u.Username {
			return store.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	r.put(cloneUser(u))
	return nil
}

func (r *usersRepo) LoadMFAState(ctx context.Context, userID string) (domain.MFAState, error) {
	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAState{}, err
	}
	return u.MFAState(), nil
}

func (r *usersRepo) ClearMFAIfEnabled(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	defer r.lock()()

	u, ok := r.lookup(userID)
	if !ok || u.MFAEnabled == nil {
		return false, nil
	}

	u.MFAEnabled = nil
	u.MFASecret = nil
	u.UpdatedAt = time.Now().UTC()
	r.put(u)
	return true, nil
}

func (r *usersRepo) all() []domain.User {
	seen := make(map[string]domain.User, len(r.s.users))
	for id, u := range r.s.users {
		seen[id] = u
	}
	if r.tx != nil {
		for id, u := range r.tx.users {
			seen[id] = u
		}
	}
	out := make([]domain.User, 0, len(seen))
	for _, u := range seen {
		out = append(out, u)
	}
	return out
}

type auditEventsRepo struct {
	s  *Store
	tx *txStore
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		if _, ok := (&usersRepo{s: r.s, tx: r.tx}).lookup(e.UserID); !ok {
			return store.ErrNotFound
		}
		r.tx.events[e.UserID] = append(r.tx.events[e.UserID], e)
		return nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[e.UserID]; !ok {
		return store.ErrNotFound
	}
	r.s.events[e.UserID] = append(r.s.events[e.UserID], e)
	return nil
}

func (r *auditEventsRepo) ListUserAuditEvents(ctx context.Context, userID string) ([]domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.tx == nil {
		r.s.mu.RLock()
		defer r.s.mu.RUnlock()
	}

	out := append([]domain.AuditEvent(nil), r.s.events[userID]...)
	if r.tx != nil {
		out = append(out, r.tx.events[userID]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneUser(u domain.User) domain.User {
	if u.MFAEnabled != nil {
		v := *u.MFAEnabled
		u.MFAEnabled = &v
	}
	if u.MFASecret != nil {
		v := *u.MFASecret
		u.MFASecret = &v
	}
	return u
}
