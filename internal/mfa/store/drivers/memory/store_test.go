package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/memory"
	"github.com/stretchr/testify/require"
)

func enrolled(id string) domain.User {
	enabled := time.Now().UTC()
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	return domain.User{ID: id, Username: id, MFAEnabled: &enabled, MFASecret: &secret}
}

func TestStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	require.NoError(t, s.Users().CreateUser(ctx, enrolled("u1")))
	require.ErrorIs(t, s.Users().CreateUser(ctx, enrolled("u1")), store.ErrAlreadyExists)

	state, err := s.Users().LoadMFAState(ctx, "u1")
	require.NoError(t, err)
	require.True(t, state.Enabled())
	require.True(t, state.Consistent())

	_, err = s.Users().LoadMFAState(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	cleared, err := s.Users().ClearMFAIfEnabled(ctx, "u1")
	require.NoError(t, err)
	require.True(t, cleared)

	cleared, err = s.Users().ClearMFAIfEnabled(ctx, "u1")
	require.NoError(t, err)
	require.False(t, cleared)
}

func TestStoreWithTxRollback(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Users().CreateUser(ctx, enrolled("u1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		cleared, err := tx.Users().ClearMFAIfEnabled(ctx, "u1")
		require.NoError(t, err)
		require.True(t, cleared)

		state, err := tx.Users().LoadMFAState(ctx, "u1")
		require.NoError(t, err)
		require.False(t, state.Enabled())

		require.NoError(t, tx.AuditEvents().CreateAuditEvent(ctx, domain.AuditEvent{
			ID: "e1", UserID: "u1", Event: domain.AuditEventMFADisabled, CreatedAt: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := s.Users().LoadMFAState(ctx, "u1")
	require.NoError(t, err)
	require.True(t, state.Enabled())

	events, err := s.AuditEvents().ListUserAuditEvents(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestStoreConcurrentClearSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Users().CreateUser(ctx, enrolled("u1")))

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx store.Tx) error {
				cleared, err := tx.Users().ClearMFAIfEnabled(ctx, "u1")
				if err != nil {
					return err
				}
				if cleared {
					winners.Add(1)
				}
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
}
