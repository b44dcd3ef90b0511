package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/prefs/internal/api"
	"github.com/kalambet/prefs/internal/config"
)

// apiClient talks to a running `prefs serve`.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// newAPIClient targets the local server and, when a signing secret is
// configured, authenticates as the configured application.
func newAPIClient(cfg config.Config) (*apiClient, error) {
	c := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	if cfg.Auth.JWTSecret != "" {
		tok, err := api.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.App.ID, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("issuing token: %w", err)
		}
		c.token = tok
	}
	return c, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is `prefs serve` running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
