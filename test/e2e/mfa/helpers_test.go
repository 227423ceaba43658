package mfa_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/app"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/pkg/authsdk"
	"github.com/aussiebroadwan/bartab-mfa/pkg/httpx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/jwtx"
	"github.com/aussiebroadwan/bartab-mfa/pkg/otpx"
	"github.com/docker/go-connections/nat"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Helpers for MFA service end-to-end tests. Postgres and Redis run in
 * containers; the service runs in-process against them, with a local JWKS
 * endpoint standing in for the auth service.
 */

const (
	testIssuer = "bartab-auth"
	testKID    = "bartab-auth-key-001"
	testSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	pgUser     = "mfa"
	pgPassword = "mfa"
	pgDatabase = "mfa"
)

// backends holds the shared containers for one test.
type backends struct {
	DatabaseURL string
	RedisAddr   string
}

// issuer signs access tokens and serves the matching JWKS.
type issuer struct {
	priv ed25519.PrivateKey
	URL  string
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

// setupBackends starts Postgres and Redis.
func setupBackends(t *testing.T) backends {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	pgAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")

	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379/tcp")

	return backends{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, pgAddr, pgDatabase),
		RedisAddr:   redisAddr,
	}
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	jwks := jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewEd25519JWK(testKID, pub)}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, jwks)
	}))
	t.Cleanup(srv.Close)

	return &issuer{priv: priv, URL: srv.URL}
}

func (i *issuer) token(t *testing.T, subject string) string {
	t.Helper()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{"bartab"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		AMR: []string{"pwd", "mfa"},
	})
	token.Header["kid"] = testKID

	s, err := token.SignedString(i.priv)
	require.NoError(t, err)
	return s
}

// startInstance runs one service instance against the shared backends.
func startInstance(t *testing.T, b backends, iss *issuer) (*app.Application, *authsdk.SDKClient) {
	t.Helper()

	cfg := app.Config{
		Issuer:              testIssuer,
		Audience:            []string{"bartab"},
		JWKSURL:             iss.URL,
		JWKSRefreshInterval: time.Minute,
		DatabaseDriver:      app.DriverPostgres,
		DatabaseURL:         b.DatabaseURL,
		ReplayBackend:       app.ReplayRedis,
		RedisAddr:           b.RedisAddr,
		TOTPPeriod:          30,
		TOTPDigits:          6,
		TOTPSkew:            1,
		StoreTimeout:        3 * time.Second,
		Env:                 "test",
		LogLevel:            "warn",
		LogFormat:           "json",
		ShutdownGracePeriod: time.Second,
	}

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return application, authsdk.NewSDKClient(srv.URL)
}

// enrollUser inserts an account with TOTP enabled.
func enrollUser(t *testing.T, application *app.Application, id string) {
	t.Helper()

	enabled := time.Now().Add(-time.Hour).UTC()
	secret := testSecret
	err := application.Store().Users().CreateUser(t.Context(), domain.User{
		ID:         id,
		Username:   id,
		MFAEnabled: &enabled,
		MFASecret:  &secret,
	})
	require.NoError(t, err)
}

func currentCode(t *testing.T) string {
	t.Helper()
	code, err := otpx.NewEngine().Code(testSecret, time.Now())
	require.NoError(t, err)
	return code
}

func requireErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var oauthErr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, code, oauthErr.Code)
}
