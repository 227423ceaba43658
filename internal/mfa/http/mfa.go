package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/service"
	"github.com/aussiebroadwan/bartab-mfa/pkg/authsdk"
	"github.com/aussiebroadwan/bartab-mfa/pkg/httpx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/slogx"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 10

var outcomeErrors = map[domain.DisableOutcome]*authsdk.OAuth2Error{
	domain.OutcomeAlreadyDisabled:        authsdk.ErrMFANotEnabled,
	domain.OutcomeInvalidCode:            authsdk.ErrInvalidCode,
	domain.OutcomeReplayedCode:           authsdk.ErrReplayedCode,
	domain.OutcomeConcurrentModification: authsdk.ErrConcurrentModification,
	domain.OutcomeAccountNotFound:        authsdk.ErrAccountNotFound,
	domain.OutcomeUnavailable:            authsdk.ErrTemporarilyUnavailable,
}

// MFAHandler handles the TOTP endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
	validate   *validator.Validate
}

func NewMFAHandler(svc *service.MFAService) *MFAHandler {
	return &MFAHandler{
		MFAService: svc,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HandleDisable handles POST /v1/mfa/totp/disable and DELETE /v1/mfa/totp
//
//	@Summary		Disable TOTP MFA
//	@Description	Turns off TOTP for the authenticated user after verifying a current code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.TOTPDisableRequest	true	"TOTP code"
//	@Success		204		"MFA disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"MFA not enabled or malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or replayed code, or invalid access token"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Account not found"
//	@Failure		409		{object}	authsdk.ErrorResponse	"MFA state changed concurrently"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Temporarily unavailable"
//	@Router			/v1/mfa/totp/disable [post]
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.TOTPDisableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body").WriteError(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		authsdk.NewOAuth2Error(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "code must be 6 to 8 digits").WriteError(w)
		return
	}

	outcome, err := h.MFAService.DisableMFA(ctx, userID, req.Code)
	if outcome == domain.OutcomeDisabled {
		log.Info("MFA disabled")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	level := slog.LevelWarn
	if outcome.Class() == domain.ClassInfrastructure {
		level = slog.LevelError
	}
	log.Log(ctx, level, "MFA disable rejected", "outcome", outcome.String(), "class", string(outcome.Class()), "err", err)

	if oauthErr, ok := outcomeErrors[outcome]; ok {
		oauthErr.WriteError(w)
		return
	}
	authsdk.ErrServerError.WriteError(w)
}

// HandleStatus handles GET /v1/mfa/totp
//
//	@Summary		TOTP status
//	@Description	Reports whether TOTP is enabled for the authenticated user.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPStatusResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Account not found"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Temporarily unavailable"
//	@Router			/v1/mfa/totp [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	enabled, err := h.MFAService.Status(ctx, userID)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPStatusResponse{Enabled: enabled})
	case errors.Is(err, service.ErrAccountNotFound):
		authsdk.ErrAccountNotFound.WriteError(w)
	default:
		log.Error("failed to load MFA status", "err", err)
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
	}
}
