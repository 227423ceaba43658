// Package otpx verifies RFC 6238 time-based one-time passwords.
//
// Engine is a pure value: it performs no I/O and holds no state between
// calls, so the same inputs always produce the same Result. Code generation
// is delegated to github.com/pquerna/otp; the window walk and the comparison
// live here so callers learn which time step matched.
package otpx

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod    uint = 30 // seconds per time step
	DefaultSkew      uint = 1  // steps tolerated either side of now
	DefaultDigits         = otp.DigitsSix
	DefaultAlgorithm      = otp.AlgorithmSHA1
)

// ErrInvalidSecret reports a secret that is empty or not base32.
var ErrInvalidSecret = errors.New("otpx: invalid secret")

// Status is the outcome of a verification.
type Status int

const (
	Invalid Status = iota
	Valid
)

func (s Status) String() string {
	if s == Valid {
		return "valid"
	}
	return "invalid"
}

// Result reports whether a code matched and, if so, at which time step.
type Result struct {
	Status Status
	Step   uint64 // only meaningful when Status == Valid
}

// Valid is shorthand for r.Status == Valid.
func (r Result) Valid() bool { return r.Status == Valid }

// Engine holds the code parameters shared by provisioning and verification.
// The zero value uses 30 second steps, 6 digits and SHA1.
type Engine struct {
	Period    uint
	Digits    otp.Digits
	Algorithm otp.Algorithm
	Skew      uint
}

// NewEngine returns an Engine with the default parameters.
func NewEngine() Engine {
	return Engine{
		Period:    DefaultPeriod,
		Digits:    DefaultDigits,
		Algorithm: DefaultAlgorithm,
		Skew:      DefaultSkew,
	}
}

func (e Engine) period() uint {
	if e.Period == 0 {
		return DefaultPeriod
	}
	return e.Period
}

func (e Engine) digits() otp.Digits {
	if e.Digits == 0 {
		return DefaultDigits
	}
	return e.Digits
}

// Step returns floor(unix(t) / period). Times before the epoch map to 0.
func (e Engine) Step(t time.Time) uint64 {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / uint64(e.period())
}

// StepTime returns the first instant of step.
func (e Engine) StepTime(step uint64) time.Time {
	return time.Unix(int64(step*uint64(e.period())), 0).UTC()
}

// Code returns the code for the step containing t.
func (e Engine) Code(secret string, t time.Time) (string, error) {
	return e.codeAt(normalizeSecret(secret), e.Step(t))
}

// Verify checks code against the steps within tolerance of now. Every
// candidate step is computed and compared so the time taken does not depend
// on which step (if any) matched. Malformed codes and secrets are Invalid.
func (e Engine) Verify(secret, code string, now time.Time, tolerance uint) Result {
	code = strings.TrimSpace(code)
	if len(code) != e.digits().Length() || !allDigits(code) {
		return Result{Status: Invalid}
	}

	secret = normalizeSecret(secret)
	current := e.Step(now)

	lo := uint64(0)
	if current > uint64(tolerance) {
		lo = current - uint64(tolerance)
	}
	hi := current + uint64(tolerance)

	result := Result{Status: Invalid}
	for step := lo; step <= hi; step++ {
		candidate, err := e.codeAt(secret, step)
		if err != nil {
			return Result{Status: Invalid}
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 && !result.Valid() {
			result = Result{Status: Valid, Step: step}
		}
	}
	return result
}

// VerifyDefault verifies with the engine's configured Skew as tolerance.
func (e Engine) VerifyDefault(secret, code string, now time.Time) Result {
	return e.Verify(secret, code, now, e.Skew)
}

func (e Engine) codeAt(secret string, step uint64) (string, error) {
	if secret == "" {
		return "", ErrInvalidSecret
	}
	code, err := totp.GenerateCodeCustom(secret, e.StepTime(step), totp.ValidateOpts{
		Period:    e.period(),
		Skew:      0,
		Digits:    e.digits(),
		Algorithm: e.Algorithm,
	})
	if err != nil {
		return "", errors.Join(ErrInvalidSecret, err)
	}
	return code, nil
}

// normalizeSecret accepts the formats authenticator apps display: lower case,
// grouped with spaces, with or without padding.
func normalizeSecret(secret string) string {
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return strings.TrimRight(secret, "=")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
