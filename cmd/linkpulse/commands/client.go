package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/errors"
)

// apiClient calls the admin API of a running daemon
type apiClient struct {
	base string
	http *http.Client
}

// clientTimeoutMargin covers the response after the run timeout fires
const clientTimeoutMargin = time.Minute

// newAPIClient targets base, or the configured local port when base is empty.
// Configuration is optional with an explicit base.
func newAPIClient(base string) (*apiClient, error) {
	cfg, err := am.Load()
	if err != nil {
		if base == "" {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		cfg = nil
	}
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: clientTimeout(cfg)},
	}, nil
}

// clientTimeout outlasts the daemon's run timeout, since a manual trigger
// waits for the whole run
func clientTimeout(cfg *am.Config) time.Duration {
	minutes := am.DefaultRunTimeoutMinutes
	if cfg != nil && cfg.Scheduler.RunTimeoutMinutes > 0 {
		minutes = cfg.Scheduler.RunTimeoutMinutes
	}
	return time.Duration(minutes)*time.Minute + clientTimeoutMargin
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *apiClient) post(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build request for %s", path)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to reach daemon at %s", c.base),
			"is `linkpulse pulse start` running with server.enabled?")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return errors.Newf("%s %s: %s (HTTP %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return errors.Newf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", path)
	}
	return nil
}
