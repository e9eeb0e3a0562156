package handle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	resty "github.com/go-resty/resty/v2"
)

// PIDClient implements backend.PIDRegistry against a handle service.
//
//	GET  /pids?url=<key>             200 {"pid": "..."} or 404
//	POST /pids {"url", "checksum"}   200 or 201 {"pid": "..."}
type PIDClient struct {
	http   *resty.Client
	logger *slog.Logger
}

type pidRecord struct {
	PID string `json:"pid"`
}

type pidRequest struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
}

// NewPIDClient creates a handle service client.
func NewPIDClient(cfg Config) *PIDClient {
	return &PIDClient{
		http:   newRestyClient(cfg),
		logger: slog.Default().With("component", "backend.handle.pid"),
	}
}

// Client returns the underlying resty client.
func (c *PIDClient) Client() *resty.Client {
	return c.http
}

// Lookup returns the PID registered for key.
func (c *PIDClient) Lookup(ctx context.Context, key string) (string, bool, error) {
	var rec pidRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("url", key).
		SetResult(&rec).
		Get("/pids")
	if err != nil {
		return "", false, fmt.Errorf("pid lookup %s: %w", key, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if rec.PID == "" {
			return "", false, fmt.Errorf("pid lookup %s: empty pid in response", key)
		}
		return rec.PID, true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, newAPIError(resp)
	}
}

// Assign registers a PID for key, returning the existing one if present.
func (c *PIDClient) Assign(ctx context.Context, key, checksum string) (string, error) {
	if pid, found, err := c.Lookup(ctx, key); err != nil {
		return "", err
	} else if found {
		return pid, nil
	}

	var rec pidRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(pidRequest{URL: key, Checksum: checksum}).
		SetResult(&rec).
		Post("/pids")
	if err != nil {
		return "", fmt.Errorf("pid assign %s: %w", key, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", newAPIError(resp)
	}
	if rec.PID == "" {
		return "", fmt.Errorf("pid assign %s: empty pid in response", key)
	}

	c.logger.Info("pid assigned", "key", key, "pid", rec.PID)
	return rec.PID, nil
}
