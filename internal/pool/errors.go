// Copyright 2026 The CatieCli Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInactivePublic is returned when a credential would become public while
// deactivated. Inactive credentials never enter the shared pool.
var ErrInactivePublic = errors.New("pool: inactive credential cannot be public")

// ErrNotFound is returned by store lookups for unknown credential IDs.
var ErrNotFound = errors.New("pool: credential not found")

// RateLimitError reports a per-user requests-per-minute ceiling being hit.
type RateLimitError struct {
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per minute", e.Limit)
}

// StatusCode implements the HTTP mapping used by the API layer.
func (e *RateLimitError) StatusCode() int { return http.StatusTooManyRequests }

// QuotaError reports a daily quota bucket being exhausted.
type QuotaError struct {
	Class string
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily quota exhausted for %s: %d/%d", e.Class, e.Used, e.Limit)
}

func (e *QuotaError) StatusCode() int { return http.StatusTooManyRequests }

// CooldownError means every otherwise-eligible credential is cooling down.
// ResetIn is the wait until the earliest one becomes eligible again.
type CooldownError struct {
	Class   string
	ResetIn time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("all credentials cooling down for %s, retry in %s", e.Class, e.ResetIn.Round(time.Second))
}

func (e *CooldownError) StatusCode() int { return http.StatusTooManyRequests }

// Headers exposes a Retry-After hint for clients.
func (e *CooldownError) Headers() map[string]string {
	secs := int64(e.ResetIn.Seconds())
	if secs < 1 {
		secs = 1
	}
	return map[string]string{"Retry-After": fmt.Sprintf("%d", secs)}
}

// NoCredentialError means the visible slice for a request is empty before
// cooldown filtering: nothing in the pool can ever serve it.
type NoCredentialError struct {
	Provider string
	Class    string
}

func (e *NoCredentialError) Error() string {
	return fmt.Sprintf("no credential available for %s/%s", e.Provider, e.Class)
}

func (e *NoCredentialError) StatusCode() int { return http.StatusServiceUnavailable }
