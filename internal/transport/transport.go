// Package transport delivers finished feedback records out of the kiosk.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kingrea/feedback-desk/internal/config"
	"github.com/kingrea/feedback-desk/internal/form"
	"github.com/kingrea/feedback-desk/internal/submission"
)

// HTTP POSTs the payload as JSON to Endpoint. Any 2xx response is success.
type HTTP struct {
	Endpoint string
	Client   *http.Client
}

// Submit implements submission.Transport.
func (h HTTP) Submit(ctx context.Context, payload form.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: post %s: %w", h.Endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transport: post %s: unexpected status %s", h.Endpoint, resp.Status)
	}
	return nil
}

// Simulated stands in for a remote endpoint: it waits Delay, then succeeds
// unless Fail is set.
type Simulated struct {
	Delay time.Duration
	Fail  bool
}

// Submit implements submission.Transport.
func (s Simulated) Submit(ctx context.Context, _ form.Payload) error {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if s.Fail {
		return fmt.Errorf("transport: simulated failure")
	}
	return nil
}

// New builds the transport selected by cfg.Mode.
func New(cfg config.TransportConfig) (submission.Transport, error) {
	switch cfg.Mode {
	case config.TransportHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("transport: http mode requires an endpoint")
		}
		return HTTP{Endpoint: cfg.Endpoint, Client: &http.Client{Timeout: cfg.Timeout}}, nil
	case config.TransportSimulated, "":
		return Simulated{Delay: cfg.SimulatedDelay, Fail: cfg.SimulateFailure}, nil
	default:
		return nil, fmt.Errorf("transport: unknown mode %q", cfg.Mode)
	}
}
