package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	minMissRefresh         = 10 * time.Second
	fetchTimeout           = 5 * time.Second
)

// RemoteKeySet mirrors the auth service's JWKS endpoint. A lookup for an
// unknown kid triggers at most one refetch per minMissRefresh, shared by all
// concurrent callers.
type RemoteKeySet struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger

	keys  *KeySet
	group singleflight.Group

	mu          sync.Mutex
	lastRefresh time.Time // last successful refresh or miss-triggered attempt
}

func NewRemoteKeySet(url string, client *http.Client, logger *slog.Logger) *RemoteKeySet {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteKeySet{
		URL:    url,
		Client: client,
		Logger: logger,
		keys:   NewKeySet(),
	}
}

// Get returns the key for kid, refetching the JWKS once if it is unknown.
func (r *RemoteKeySet) Get(kid string) (any, error) {
	if key, err := r.keys.Get(kid); err == nil {
		return key, nil
	}

	if !r.claimRefresh() {
		return nil, ErrNoKey
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		r.Logger.Warn("jwks refresh on unknown kid failed", "kid", kid, "error", err)
		return nil, ErrNoKey
	}
	return r.keys.Get(kid)
}

// IsReady reports whether at least one key has been loaded.
func (r *RemoteKeySet) IsReady() bool { return r.keys.IsReady() }

// Refresh fetches the JWKS and replaces the key set. Concurrent calls share a
// single request.
func (r *RemoteKeySet) Refresh(ctx context.Context) error {
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		jwks, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.keys.ResetFromJWKS(jwks); err != nil {
			return nil, fmt.Errorf("jwtx: load jwks: %w", err)
		}

		r.mu.Lock()
		r.lastRefresh = time.Now()
		r.mu.Unlock()

		r.Logger.Debug("jwks refreshed", "keys", len(jwks.Keys))
		return nil, nil
	})
	return err
}

// Run refreshes every interval until ctx is done.
func (r *RemoteKeySet) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.Logger.Error("jwks refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// claimRefresh reports whether a miss may trigger a fetch and, if so, records
// the attempt whether or not the fetch later succeeds.
func (r *RemoteKeySet) claimRefresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastRefresh) < minMissRefresh {
		return false
	}
	r.lastRefresh = time.Now()
	return true
}

func (r *RemoteKeySet) fetch(ctx context.Context) (JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return JWKS{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return JWKS{}, fmt.Errorf("jwtx: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JWKS{}, fmt.Errorf("jwtx: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return JWKS{}, fmt.Errorf("jwtx: decode jwks: %w", err)
	}
	return jwks, nil
}
