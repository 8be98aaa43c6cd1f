// Package credential implements the CredentialHolder (component C): the
// access/refresh credential pair for one user, with coalesced concurrent
// refresh and a persistence callback that receives the new access
// credential and its expiry.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/autoreplyd/engine/internal/domain"
)

// PersistFunc is invoked after a successful refresh so the caller can write
// the new access credential (and its expiry) to durable storage.
type PersistFunc func(ctx context.Context, userID, access string, expiresAt time.Time) error

// Holder implements domain.CredentialHolder for one user. Concurrent
// Refresh calls on the same Holder are coalesced: only one request reaches
// the identity provider, the rest await its result (spec.md §5).
type Holder struct {
	mu sync.Mutex

	userID       string
	access       string
	expiresAt    time.Time
	refreshToken string

	tokenURL     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	persist    PersistFunc

	inFlight chan struct{}
	lastErr  error
}

// Config bundles the construction parameters for a Holder.
type Config struct {
	UserID       string
	Access       string
	ExpiresAt    time.Time
	RefreshToken string
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Persist      PersistFunc
}

// New constructs a Holder seeded with the current credential pair.
func New(cfg Config) *Holder {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Holder{
		userID:       cfg.UserID,
		access:       cfg.Access,
		expiresAt:    cfg.ExpiresAt,
		refreshToken: cfg.RefreshToken,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   hc,
		persist:      cfg.Persist,
	}
}

// Current returns the credential pair currently held in memory.
func (h *Holder) Current() (string, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.access, h.expiresAt
}

// Refresh exchanges the refresh credential for a new access credential. If a
// refresh is already in flight, the caller waits for it instead of issuing a
// second request to the identity provider.
func (h *Holder) Refresh(ctx context.Context) (string, time.Time, error) {
	h.mu.Lock()
	if h.inFlight != nil {
		ch := h.inFlight
		h.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
		h.mu.Lock()
		access, expiresAt, err := h.access, h.expiresAt, h.lastErr
		h.mu.Unlock()
		return access, expiresAt, err
	}
	ch := make(chan struct{})
	h.inFlight = ch
	refreshToken := h.refreshToken
	userID := h.userID
	h.mu.Unlock()

	access, expiresAt, err := h.exchangeRefreshToken(ctx, refreshToken)

	h.mu.Lock()
	h.lastErr = err
	if err == nil {
		h.access = access
		h.expiresAt = expiresAt
	}
	close(h.inFlight)
	h.inFlight = nil
	h.mu.Unlock()

	if err != nil {
		return "", time.Time{}, err
	}

	if h.persist != nil {
		if perr := h.persist(ctx, userID, access, expiresAt); perr != nil {
			return access, expiresAt, fmt.Errorf("op=credential.refresh.persist: %w", perr)
		}
	}
	return access, expiresAt, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// exchangeRefreshToken POSTs the OAuth2 refresh-token grant, retrying
// transient network/5xx failures with exponential backoff (mirrors the
// teacher's internal/adapter/ai/real/client.go retry shape). A rejected
// refresh token (400/401, "invalid_grant") is permanent: CredentialRevoked.
func (h *Holder) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	var access string
	var expiresAt time.Time

	op := func() error {
		form := url.Values{}
		form.Set("client_id", h.clientID)
		form.Set("client_secret", h.clientSecret)
		form.Set("refresh_token", refreshToken)
		form.Set("grant_type", "refresh_token")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("op=credential.exchange.build_request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("op=credential.exchange.do: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(fmt.Errorf("op=credential.exchange: %w: %s", domain.ErrCredentialRevoked, body))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("op=credential.exchange: %w", &domain.PlatformError{Status: resp.StatusCode, Body: string(body)})
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("op=credential.exchange: %w", &domain.PlatformError{Status: resp.StatusCode, Body: string(body)}))
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return backoff.Permanent(fmt.Errorf("op=credential.exchange.decode: %w", err))
		}
		if tr.AccessToken == "" {
			return backoff.Permanent(fmt.Errorf("op=credential.exchange: %w: empty access_token", domain.ErrCredentialRevoked))
		}
		access = tr.AccessToken
		expiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", time.Time{}, err
	}
	return access, expiresAt, nil
}
