package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/replay"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/memory"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/bartab-mfa/pkg/otpx"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const testSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

var testNow = time.Unix(1700000000, 0)

type fixture struct {
	svc    *MFAService
	store  store.Store
	clock  *clockwork.FakeClock
	guard  *replay.MemoryGuard
	engine otpx.Engine
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testNow)
	engine := otpx.NewEngine()
	guard := replay.NewMemoryGuard(clock, replay.TTL(30*time.Second, engine.Skew))

	return &fixture{
		svc: &MFAService{
			Store:        s,
			Engine:       engine,
			Guard:        guard,
			Clock:        clock,
			StoreTimeout: 50 * time.Millisecond,
		},
		store:  s,
		clock:  clock,
		guard:  guard,
		engine: engine,
	}
}

func (f *fixture) code(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := f.engine.Code(testSecret, at)
	require.NoError(t, err)
	return code
}

func createUser(t *testing.T, s store.Store, id string, enrolled bool) {
	t.Helper()

	u := domain.User{ID: id, Username: id}
	if enrolled {
		enabled := testNow.Add(-24 * time.Hour)
		secret := testSecret
		u.MFAEnabled = &enabled
		u.MFASecret = &secret
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
}

func requireEnabled(t *testing.T, s store.Store, id string, want bool) {
	t.Helper()
	state, err := s.Users().LoadMFAState(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, state.Enabled())
	require.True(t, state.Consistent())
}

func TestDisableMFA(t *testing.T) {
	ctx := context.Background()

	t.Run("valid code disables then reports already disabled", func(t *testing.T) {
		s, err := sqlite.NewStore(":memory:")
		require.NoError(t, err)
		require.NoError(t, s.ApplyMigrations())
		t.Cleanup(func() { _ = s.Close() })

		f := newFixture(t, s)
		createUser(t, s, "user-1", true)
		code := f.code(t, testNow)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", code)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeDisabled, outcome)
		requireEnabled(t, s, "user-1", false)

		events, err := s.AuditEvents().ListUserAuditEvents(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, domain.AuditEventMFADisabled, events[0].Event)

		outcome, err = f.svc.DisableMFA(ctx, "user-1", code)
		require.ErrorIs(t, err, ErrMFANotEnabled)
		require.Equal(t, domain.OutcomeAlreadyDisabled, outcome)
	})

	t.Run("adjacent steps are accepted", func(t *testing.T) {
		for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
			s := memory.NewStore()
			f := newFixture(t, s)
			createUser(t, s, "user-1", true)

			outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow.Add(offset)))
			require.NoError(t, err, "offset=%s", offset)
			require.Equal(t, domain.OutcomeDisabled, outcome)
		}
	})

	t.Run("stale code is invalid and leaves mfa enabled", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow.Add(-90*time.Second)))
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		require.Equal(t, domain.OutcomeInvalidCode, outcome)
		requireEnabled(t, s, "user-1", true)
	})

	t.Run("malformed code is invalid", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", "12ab56")
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		require.Equal(t, domain.OutcomeInvalidCode, outcome)
	})

	t.Run("replayed step is rejected", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)

		status, err := f.guard.CheckAndConsume(ctx, "user-1", f.engine.Step(testNow))
		require.NoError(t, err)
		require.Equal(t, replay.Fresh, status)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrReplayedTOTPCode)
		require.Equal(t, domain.OutcomeReplayedCode, outcome)
		requireEnabled(t, s, "user-1", true)
	})

	t.Run("user without mfa is already disabled", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", false)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrMFANotEnabled)
		require.Equal(t, domain.OutcomeAlreadyDisabled, outcome)

		// Nothing is consumed or recorded.
		require.Equal(t, 0, f.guard.Len())
		events, err := s.AuditEvents().ListUserAuditEvents(ctx, "user-1")
		require.NoError(t, err)
		require.Empty(t, events)
		requireEnabled(t, s, "user-1", false)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t, memory.NewStore())

		outcome, err := f.svc.DisableMFA(ctx, "ghost", "123456")
		require.ErrorIs(t, err, ErrAccountNotFound)
		require.Equal(t, domain.OutcomeAccountNotFound, outcome)
	})

	t.Run("enabled without secret is unavailable", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		enabled := testNow
		require.NoError(t, s.Users().CreateUser(ctx, domain.User{ID: "user-1", Username: "user-1", MFAEnabled: &enabled}))

		outcome, err := f.svc.DisableMFA(ctx, "user-1", "123456")
		require.ErrorIs(t, err, ErrUnavailable)
		require.ErrorIs(t, err, ErrInconsistentState)
		require.Equal(t, domain.OutcomeUnavailable, outcome)
	})

	t.Run("store timeout is unavailable", func(t *testing.T) {
		mem := memory.NewStore()
		createUser(t, mem, "user-1", true)
		s := &hookedStore{Store: mem, users: func(u store.Users) store.Users { return blockingUsers{u} }}
		f := newFixture(t, s)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, domain.OutcomeUnavailable, outcome)
		requireEnabled(t, mem, "user-1", true)
	})

	t.Run("guard failure is unavailable", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)
		f.svc.Guard = failingGuard{}

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrUnavailable)
		require.Equal(t, domain.OutcomeUnavailable, outcome)
		requireEnabled(t, s, "user-1", true)
	})

	t.Run("guard timeout is unavailable", func(t *testing.T) {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)
		f.svc.Guard = blockingGuard{}

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, domain.OutcomeUnavailable, outcome)
		requireEnabled(t, s, "user-1", true)
	})

	t.Run("state cleared after load is a concurrent modification", func(t *testing.T) {
		mem := memory.NewStore()
		createUser(t, mem, "user-1", true)
		s := &hookedStore{Store: mem, users: func(u store.Users) store.Users {
			return racingUsers{Users: u, race: func() {
				_, _ = mem.Users().ClearMFAIfEnabled(context.Background(), "user-1")
			}}
		}}
		f := newFixture(t, s)

		outcome, err := f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))
		require.ErrorIs(t, err, ErrConcurrentModification)
		require.Equal(t, domain.OutcomeConcurrentModification, outcome)

		events, err := mem.AuditEvents().ListUserAuditEvents(ctx, "user-1")
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestDisableMFAConcurrentRequests(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s := memory.NewStore()
		f := newFixture(t, s)
		createUser(t, s, "user-1", true)
		code := f.code(t, testNow)

		var (
			wg       sync.WaitGroup
			outcomes = make([]domain.DisableOutcome, 2)
			start    = make(chan struct{})
		)
		for j := range outcomes {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				<-start
				outcomes[j], _ = f.svc.DisableMFA(ctx, "user-1", code)
			}(j)
		}
		close(start)
		wg.Wait()

		disabled := 0
		for _, o := range outcomes {
			switch o {
			case domain.OutcomeDisabled:
				disabled++
			case domain.OutcomeReplayedCode, domain.OutcomeAlreadyDisabled, domain.OutcomeConcurrentModification:
			default:
				t.Fatalf("unexpected outcome %s", o)
			}
		}
		require.Equal(t, 1, disabled)
		requireEnabled(t, s, "user-1", false)
	}
}

func TestMFAStatus(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	f := newFixture(t, s)
	createUser(t, s, "on", true)
	createUser(t, s, "off", false)

	enabled, err := f.svc.Status(ctx, "on")
	require.NoError(t, err)
	require.True(t, enabled)

	enabled, err = f.svc.Status(ctx, "off")
	require.NoError(t, err)
	require.False(t, enabled)

	_, err = f.svc.Status(ctx, "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDisableMFAMetrics(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	f := newFixture(t, s)
	f.svc.Metrics = NewMetrics(prometheus.NewRegistry())
	createUser(t, s, "user-1", true)

	_, _ = f.svc.DisableMFA(ctx, "user-1", "000000")
	_, _ = f.svc.DisableMFA(ctx, "user-1", f.code(t, testNow))

	require.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics.DisableOutcomes.WithLabelValues("disabled", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(f.svc.Metrics.DisableOutcomes.WithLabelValues("invalid_code", "client")))
}

type hookedStore struct {
	store.Store
	users func(store.Users) store.Users
}

func (h *hookedStore) Users() store.Users { return h.users(h.Store.Users()) }

type blockingUsers struct{ store.Users }

func (b blockingUsers) LoadMFAState(ctx context.Context, _ string) (domain.MFAState, error) {
	<-ctx.Done()
	return domain.MFAState{}, ctx.Err()
}

type racingUsers struct {
	store.Users
	race func()
}

func (r racingUsers) LoadMFAState(ctx context.Context, userID string) (domain.MFAState, error) {
	state, err := r.Users.LoadMFAState(ctx, userID)
	r.race()
	return state, err
}

// blockingGuard never answers until its context ends.
type blockingGuard struct{}

func (blockingGuard) CheckAndConsume(ctx context.Context, _ string, _ uint64) (replay.Status, error) {
	<-ctx.Done()
	return replay.Fresh, ctx.Err()
}

type failingGuard struct{}

func (failingGuard) CheckAndConsume(context.Context, string, uint64) (replay.Status, error) {
	return replay.Fresh, errors.New("redis: connection refused")
}
