package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/replay"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/pkg/idx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/otpx"
	"github.com/jonboulle/clockwork"
)

const DefaultStoreTimeout = 3 * time.Second

var (
	ErrInvalidTOTPCode        = errors.New("invalid TOTP code")
	ErrReplayedTOTPCode       = errors.New("TOTP code already used")
	ErrMFANotEnabled          = errors.New("MFA not enabled for this user")
	ErrConcurrentModification = errors.New("MFA state changed concurrently")
	ErrAccountNotFound        = errors.New("account not found")
	ErrUnavailable            = errors.New("MFA state temporarily unavailable")

	// ErrInconsistentState is wrapped with ErrUnavailable when the store
	// reports MFA enabled without a secret.
	ErrInconsistentState = errors.New("MFA enabled without a secret")
)

// errNotCleared aborts the disable transaction when the conditional update
// matched no row.
var errNotCleared = errors.New("mfa not cleared")

type MFAService struct {
	Store        store.Store
	Engine       otpx.Engine
	Guard        replay.Guard
	Clock        clockwork.Clock
	StoreTimeout time.Duration // bound on each store and guard call, DefaultStoreTimeout when zero
	Metrics      *Metrics      // optional
}

// DisableMFA turns TOTP off for userID after verifying code. The error is nil
// only for OutcomeDisabled; otherwise it wraps one of the package sentinels.
// The account's persisted state changes only on OutcomeDisabled.
func (s *MFAService) DisableMFA(ctx context.Context, userID string, code string) (domain.DisableOutcome, error) {
	start := s.clock().Now()
	outcome, err := s.disableMFA(ctx, userID, code)
	s.Metrics.observeDisable(outcome, s.clock().Since(start))
	return outcome, err
}

func (s *MFAService) disableMFA(ctx context.Context, userID string, code string) (domain.DisableOutcome, error) {
	state, err := s.loadState(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return domain.OutcomeAccountNotFound, err
		}
		return domain.OutcomeUnavailable, err
	}

	if !state.Enabled() {
		return domain.OutcomeAlreadyDisabled, ErrMFANotEnabled
	}
	if !state.Consistent() {
		return domain.OutcomeUnavailable, fmt.Errorf("%w: %w", ErrUnavailable, ErrInconsistentState)
	}

	// Verify the TOTP code
	now := s.clock().Now()
	result := s.Engine.VerifyDefault(state.Secret, code, now)
	if !result.Valid() {
		return domain.OutcomeInvalidCode, ErrInvalidTOTPCode
	}

	// Consume the matched step, not the submitted code
	var status replay.Status
	err = s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		status, err = s.Guard.CheckAndConsume(ctx, userID, result.Step)
		return err
	})
	if err != nil {
		return domain.OutcomeUnavailable, fmt.Errorf("%w: failed to check replay: %w", ErrUnavailable, err)
	}
	if status == replay.AlreadyUsed {
		return domain.OutcomeReplayedCode, ErrReplayedTOTPCode
	}

	// Clear MFA and record the event in a transaction
	err = s.withStoreTimeout(ctx, func(ctx context.Context) error {
		return s.Store.WithTx(ctx, func(tx store.Tx) error {
			cleared, err := tx.Users().ClearMFAIfEnabled(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to clear MFA: %w", err)
			}
			if !cleared {
				return errNotCleared
			}

			event := domain.AuditEvent{
				ID:        idx.NewAt(now).String(),
				UserID:    userID,
				Event:     domain.AuditEventMFADisabled,
				CreatedAt: now,
			}
			if err := tx.AuditEvents().CreateAuditEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to record audit event: %w", err)
			}
			return nil
		})
	})
	if errors.Is(err, errNotCleared) {
		return domain.OutcomeConcurrentModification, ErrConcurrentModification
	}
	if err != nil {
		return domain.OutcomeUnavailable, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return domain.OutcomeDisabled, nil
}

// Status reports whether TOTP is enabled for userID. The secret never leaves
// the service.
func (s *MFAService) Status(ctx context.Context, userID string) (bool, error) {
	state, err := s.loadState(ctx, userID)
	if err != nil {
		return false, err
	}
	if !state.Consistent() {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, ErrInconsistentState)
	}
	return state.Enabled(), nil
}

// loadState maps store errors onto ErrAccountNotFound or ErrUnavailable.
func (s *MFAService) loadState(ctx context.Context, userID string) (domain.MFAState, error) {
	var state domain.MFAState
	err := s.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		state, err = s.Store.Users().LoadMFAState(ctx, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.MFAState{}, ErrAccountNotFound
	}
	if err != nil {
		return domain.MFAState{}, fmt.Errorf("%w: failed to get MFA info: %w", ErrUnavailable, err)
	}
	return state, nil
}

func (s *MFAService) withStoreTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(ctx)
}

func (s *MFAService) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}
