// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package refresh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// onboardPollInterval and onboardMaxAttempts bound the long-running
// onboardUser operation to roughly ten seconds.
const (
	onboardPollInterval = 2 * time.Second
	onboardMaxAttempts  = 5
)

var discoveryMetadata = map[string]any{
	"ideType":    "ANTIGRAVITY",
	"platform":   "PLATFORM_UNSPECIFIED",
	"pluginType": "GEMINI",
}

// DiscoverProjectID resolves the Cloud AI Companion project bound to an
// access token. It first asks loadCodeAssist; if the user is not onboarded
// yet it falls back to onboardUser and polls until the operation finishes.
func (r *Refresher) DiscoverProjectID(ctx context.Context, baseURL, accessToken, userAgent string) (string, error) {
	base := strings.TrimRight(baseURL, "/")

	projectID, err := r.tryLoadCodeAssist(ctx, base, accessToken, userAgent)
	if err != nil {
		log.Warnf("loadCodeAssist failed, falling back to onboardUser: %v", err)
	} else if projectID != "" {
		return projectID, nil
	}
	return r.tryOnboardUser(ctx, base, accessToken, userAgent)
}

func (r *Refresher) tryLoadCodeAssist(ctx context.Context, base, accessToken, userAgent string) (string, error) {
	body, err := r.postDiscovery(ctx, base+"/v1internal:loadCodeAssist", accessToken, userAgent, map[string]any{
		"metadata": discoveryMetadata,
	})
	if err != nil {
		return "", err
	}
	// No currentTier means the account is not onboarded yet; the caller
	// falls through to onboardUser.
	if !gjson.GetBytes(body, "currentTier").Exists() {
		return "", nil
	}
	return gjson.GetBytes(body, "cloudaicompanionProject").String(), nil
}

func (r *Refresher) tryOnboardUser(ctx context.Context, base, accessToken, userAgent string) (string, error) {
	tierID, err := r.defaultTier(ctx, base, accessToken, userAgent)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"tierId":   tierID,
		"metadata": discoveryMetadata,
	}
	for attempt := 0; attempt < onboardMaxAttempts; attempt++ {
		body, err := r.postDiscovery(ctx, base+"/v1internal:onboardUser", accessToken, userAgent, payload)
		if err != nil {
			return "", err
		}
		if gjson.GetBytes(body, "done").Bool() {
			project := gjson.GetBytes(body, "response.cloudaicompanionProject")
			if project.IsObject() {
				return project.Get("id").String(), nil
			}
			return project.String(), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(onboardPollInterval):
		}
	}
	return "", fmt.Errorf("refresh: onboardUser did not complete after %d attempts", onboardMaxAttempts)
}

func (r *Refresher) defaultTier(ctx context.Context, base, accessToken, userAgent string) (string, error) {
	body, err := r.postDiscovery(ctx, base+"/v1internal:loadCodeAssist", accessToken, userAgent, map[string]any{
		"metadata": discoveryMetadata,
	})
	if err != nil {
		return "", err
	}
	var tierID string
	gjson.GetBytes(body, "allowedTiers").ForEach(func(_, tier gjson.Result) bool {
		if tier.Get("isDefault").Bool() {
			tierID = tier.Get("id").String()
			return false
		}
		return true
	})
	if tierID == "" {
		tierID = "free-tier"
	}
	return tierID, nil
}

func (r *Refresher) postDiscovery(ctx context.Context, url, accessToken, userAgent string, payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh: %s returned HTTP %d: %s", url, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
