/*
Package authsdk is the Go client for the BarTab MFA service.

Create an SDKClient and pass the caller's access token, issued by the BarTab
auth service, to authenticated calls:

	client := authsdk.NewSDKClient("https://mfa.example.com")

	status, err := client.MFAStatus(ctx, accessToken)

	err = client.DisableTOTP(ctx, accessToken, "123456")
	var oauthErr *authsdk.OAuth2Error
	if errors.As(err, &oauthErr) && oauthErr.Code == authsdk.ErrorCodeInvalidCode {
		// ask the user for a fresh code
	}

Every non-2xx response is returned as an *OAuth2Error carrying the HTTP
status, the error code and its description. The same type is used by the
service to write those responses, so codes are shared constants.
*/
package authsdk
