package authsdk

import (
	"context"
	"net/http"
)

// DisableTOTP turns off TOTP for the token's subject. It returns nil on 204
// and an *OAuth2Error otherwise; see the ErrorCode constants.
func (c *SDKClient) DisableTOTP(ctx context.Context, accessToken, code string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp/disable", accessToken, TOTPDisableRequest{Code: code})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// MFAStatus reports whether TOTP is enabled for the token's subject.
func (c *SDKClient) MFAStatus(ctx context.Context, accessToken string) (*TOTPStatusResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/mfa/totp", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var status TOTPStatusResponse
	if err := decodeJSON(resp, &status, http.StatusOK); err != nil {
		return nil, err
	}
	return &status, nil
}
