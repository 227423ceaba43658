package domain

import "time"

type User struct {
	ID         string
	Username   string
	MFAEnabled *time.Time // Timestamp when MFA was enabled (nullable)
	MFASecret  *string    // TOTP secret (nullable, base32 encoded)
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MFAState returns the enrollment view of the user row.
func (u User) MFAState() MFAState {
	state := MFAState{UserID: u.ID, EnabledAt: u.MFAEnabled}
	if u.MFASecret != nil {
		state.Secret = *u.MFASecret
	}
	return state
}
