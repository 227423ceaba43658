package domain

import "time"

// MFAState is the TOTP enrollment of a single account as read from the store.
// A secret is present iff EnabledAt is set; Consistent reports that.
type MFAState struct {
	UserID    string
	Secret    string     // base32, never logged or returned to clients
	EnabledAt *time.Time // nil when MFA is disabled
}

// Enabled reports whether the account currently enforces TOTP.
func (s MFAState) Enabled() bool { return s.EnabledAt != nil }

// Consistent reports whether the enabled flag and the secret agree.
func (s MFAState) Consistent() bool { return s.Enabled() == (s.Secret != "") }

// DisableOutcome is the terminal state of one disable attempt.
type DisableOutcome int

const (
	OutcomeUnavailable DisableOutcome = iota
	OutcomeDisabled
	OutcomeAlreadyDisabled
	OutcomeInvalidCode
	OutcomeReplayedCode
	OutcomeConcurrentModification
	OutcomeAccountNotFound
)

var outcomeNames = map[DisableOutcome]string{
	OutcomeUnavailable:            "unavailable",
	OutcomeDisabled:               "disabled",
	OutcomeAlreadyDisabled:        "already_disabled",
	OutcomeInvalidCode:            "invalid_code",
	OutcomeReplayedCode:           "replayed_code",
	OutcomeConcurrentModification: "concurrent_modification",
	OutcomeAccountNotFound:        "account_not_found",
}

func (o DisableOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// ErrorClass groups outcomes by who is expected to act on them.
type ErrorClass string

const (
	ClassNone           ErrorClass = ""               // success
	ClassClient         ErrorClass = "client"         // bad or stale input, never retry with the same code
	ClassStateConflict  ErrorClass = "state_conflict" // benign race or state mismatch
	ClassInfrastructure ErrorClass = "infrastructure" // store or guard unreachable, retry with backoff
)

// Class returns the error class of the outcome.
func (o DisableOutcome) Class() ErrorClass {
	switch o {
	case OutcomeDisabled:
		return ClassNone
	case OutcomeInvalidCode, OutcomeReplayedCode:
		return ClassClient
	case OutcomeAlreadyDisabled, OutcomeConcurrentModification, OutcomeAccountNotFound:
		return ClassStateConflict
	default:
		return ClassInfrastructure
	}
}

// AuditEvent records an MFA state change.
type AuditEvent struct {
	ID        string // ULID
	UserID    string
	Event     string
	CreatedAt time.Time
}

const AuditEventMFADisabled = "mfa.totp.disabled"
