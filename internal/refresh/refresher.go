// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package refresh keeps pooled OAuth credentials usable: it refreshes
// expired access tokens through the provider token endpoints, collapses
// concurrent refreshes of the same credential into a single upstream call,
// and deactivates credentials whose refresh tokens have been revoked.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/aa105132/CatieCli/internal/pool"
	"github.com/aa105132/CatieCli/internal/secret"
)

const codexTokenURL = "https://auth.openai.com/oauth/token"

// ErrRefreshFailed marks a transient refresh failure: the token endpoint was
// unreachable or returned a retryable status. The credential stays active.
var ErrRefreshFailed = errors.New("refresh: token refresh failed")

// ErrCredentialInvalid marks a permanent failure (revoked or expired refresh
// token). The credential has been deactivated.
var ErrCredentialInvalid = errors.New("refresh: credential invalid")

// Refresher refreshes credential tokens on demand.
type Refresher struct {
	store      *pool.Store
	httpClient *http.Client
	group      singleflight.Group
}

// NewRefresher returns a Refresher writing refreshed tokens through store.
// A nil httpClient falls back to a 30-second-timeout default.
func NewRefresher(store *pool.Store, httpClient *http.Client) *Refresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refresher{store: store, httpClient: httpClient}
}

// EnsureFresh returns a credential whose access token is valid for at least
// the refresh lead. Concurrent callers holding the same expired credential
// share one refresh; losers get the winner's result.
func (r *Refresher) EnsureFresh(ctx context.Context, cred *pool.Credential) (*pool.Credential, error) {
	if !cred.TokenExpired(time.Now()) {
		return cred, nil
	}

	v, err, _ := r.group.Do(strconv.FormatInt(cred.ID, 10), func() (interface{}, error) {
		// Re-read under the flight: another request may have refreshed the
		// credential between our staleness check and winning the flight.
		latest, err := r.store.Get(cred.ID)
		if err != nil {
			return nil, err
		}
		if !latest.TokenExpired(time.Now()) {
			return latest, nil
		}
		return r.refresh(ctx, latest)
	})
	if err != nil {
		return nil, err
	}
	return v.(*pool.Credential), nil
}

func (r *Refresher) refresh(ctx context.Context, cred *pool.Credential) (*pool.Credential, error) {
	if cred.RefreshToken == "" {
		_, _ = r.store.Deactivate(ctx, cred.ID, "no refresh token")
		return nil, fmt.Errorf("%w: credential %d has no refresh token", ErrCredentialInvalid, cred.ID)
	}

	conf, err := oauthConfig(cred.Provider)
	if err != nil {
		return nil, err
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := conf.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		if isPermanentAuthError(err) {
			_, _ = r.store.Deactivate(ctx, cred.ID, "refresh rejected: "+err.Error())
			return nil, fmt.Errorf("%w: credential %d: %v", ErrCredentialInvalid, cred.ID, err)
		}
		return nil, fmt.Errorf("%w: credential %d: %v", ErrRefreshFailed, cred.ID, err)
	}

	if err := r.store.UpdateTokens(ctx, cred.ID, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		return nil, err
	}
	log.Debugf("Refreshed token for credential %d (%s), expires %s", cred.ID, cred.Email, tok.Expiry.Format(time.RFC3339))
	return r.store.Get(cred.ID)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	switch provider {
	case pool.ProviderGeminiCLI:
		return &oauth2.Config{
			ClientID:     secret.GeminiClientID(),
			ClientSecret: secret.GeminiClientSecret(),
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/cloud-platform",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		}, nil
	case pool.ProviderAntigravity:
		return &oauth2.Config{
			ClientID:     secret.AntigravityClientID(),
			ClientSecret: secret.AntigravityClientSecret(),
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/cloud-platform",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		}, nil
	case pool.ProviderCodex:
		return &oauth2.Config{
			ClientID: secret.CodexClientID(),
			Endpoint: oauth2.Endpoint{TokenURL: codexTokenURL},
			Scopes:   []string{"openid", "profile", "email"},
		}, nil
	default:
		return nil, fmt.Errorf("refresh: unknown provider %q", provider)
	}
}

// isPermanentAuthError distinguishes a revoked grant from a transient outage.
// Google and OpenAI both answer a dead refresh token with 400/401 and an
// invalid_grant error code.
func isPermanentAuthError(err error) bool {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return strings.Contains(string(rerr.Body), "invalid_grant") ||
				rerr.Response.StatusCode != http.StatusBadRequest
		}
	}
	return false
}
