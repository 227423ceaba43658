package authsdk

// ErrorResponse is the wire form of an error: {"error","error_description"}.
type ErrorResponse struct {
	Error            string `json:"error" example:"invalid_code"`
	ErrorDescription string `json:"error_description" example:"the TOTP code is invalid"`
}

// TOTPDisableRequest is the body of POST /v1/mfa/totp/disable.
type TOTPDisableRequest struct {
	Code string `json:"code" validate:"required,numeric,min=6,max=8" example:"123456"`
}

// TOTPStatusResponse is returned from GET /v1/mfa/totp. The secret is never
// included.
type TOTPStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// HealthResponse is returned from /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of each dependency checked by /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Keys     string `json:"keys"`
	Replay   string `json:"replay,omitempty"`
}
