package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
)

// tokenAttempts bounds how often a rate-limited token request is retried.
const tokenAttempts = 10

// apiClient is a minimal JSON client for the discount API.
type apiClient struct {
	base string
	http *http.Client
}

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	// RetryAfter is the Retry-After header in seconds, 0 when absent.
	RetryAfter int `json:"-"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

type campaign struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"brand"`
	Percentage int    `json:"percentage"`
	Available  int    `json:"available"`
}

type issuedCode struct {
	Code     string `json:"code"`
	Claimant string `json:"claimant"`
}

func newAPIClient(base string, hc *http.Client) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: hc}
}

// do sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses come back as *apiError.
func (c *apiClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		ae.RetryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		_ = json.NewDecoder(resp.Body).Decode(ae)
		return ae
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// token fetches an access token. The token endpoint is rate limited per
// client IP, so 429s are waited out as the server's Retry-After asks.
func (c *apiClient) token(ctx context.Context, username, role string) (string, error) {
	body := map[string]string{"username": username, "role": role}
	return backoff.Retry(ctx,
		func() (string, error) {
			var out struct {
				Token string `json:"token"`
			}
			err := c.do(ctx, http.MethodPost, "/auth/token", "", body, &out)
			var ae *apiError
			if errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests {
				return "", backoff.RetryAfter(max(1, ae.RetryAfter))
			}
			if err != nil {
				return "", backoff.Permanent(err)
			}
			return out.Token, nil
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tokenAttempts),
	)
}

func (c *apiClient) createCampaign(ctx context.Context, token, name string, percentage, quota int) (*campaign, error) {
	var out campaign
	body := map[string]any{"name": name, "percentage": percentage, "quota": quota}
	if err := c.do(ctx, http.MethodPost, "/campaigns", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) getCampaign(ctx context.Context, token string, id int64) (*campaign, error) {
	var out campaign
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/campaigns/%d", id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) claim(ctx context.Context, token string, id int64) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/campaigns/%d/claim", id), token, nil, &out)
	return out.Code, err
}

func (c *apiClient) listCodes(ctx context.Context, token string, id int64) ([]issuedCode, error) {
	var out struct {
		Codes []issuedCode `json:"codes"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/campaigns/%d/codes", id), token, nil, &out)
	return out.Codes, err
}
