// Package search holds the outbound search execution client. The scheduler
// core never parses result content; it only needs the result count, so the
// client surface stays deliberately small.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"venuescout/internal/logging"
	"venuescout/internal/quota"
)

// TransientError is a timeout or 5xx from the provider. The dispatcher may
// retry these with backoff; the client itself never retries.
type TransientError struct {
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider unreachable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Reached reports whether the call made it to the provider (and so must be
// billed) despite failing.
func (e *TransientError) Reached() bool { return e.StatusCode > 0 }

// RateLimitError is a 429: the credential's quota is spent upstream even
// though our own accounting has not caught up yet.
type RateLimitError struct {
	CredentialID string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limit hit for credential %s", e.CredentialID)
}

// response is the subset of the provider's JSON we care about.
type response struct {
	Items             []json.RawMessage `json:"items"`
	SearchInformation struct {
		TotalResults string `json:"totalResults"`
	} `json:"searchInformation"`
}

// Client executes queries against a Custom Search style HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a search client. The timeout bounds the full request;
// callers additionally pass per-call contexts.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Execute runs one query under the given credential and returns the result
// count. Classification: 429 -> RateLimitError, 5xx and transport failures
// -> TransientError, other non-200s are permanent.
func (c *Client) Execute(ctx context.Context, query string, cred quota.Credential) (int, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, fmt.Errorf("bad search base url: %w", err)
	}
	q := u.Query()
	q.Set("key", cred.APIKey)
	q.Set("cx", cred.EngineID)
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, &RateLimitError{CredentialID: cred.ID}
	case resp.StatusCode >= 500:
		return 0, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("server error")}
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("provider rejected query: status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	count := len(body.Items)
	if count == 0 && body.SearchInformation.TotalResults != "" {
		if total, err := strconv.Atoi(body.SearchInformation.TotalResults); err == nil && total > 0 {
			count = total
		}
	}
	logging.DispatchDebug("search %q via %s: %d results", query, cred.ID, count)
	return count, nil
}
