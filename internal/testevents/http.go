package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pulse/internal/domain/model"
)

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

// ErrRejected is returned when the service does not accept an event.
var ErrRejected = errors.New("event rejected")

// Publisher delivers one event. app.Service satisfies it in-process and
// HTTPPublisher over the network.
type Publisher interface {
	Publish(ctx context.Context, e model.RawEvent) error
}

// HTTPPublisher posts events to a running service's /events endpoint.
type HTTPPublisher struct {
	client  *http.Client
	baseURL string
}

// NewHTTPPublisher creates a publisher with the given request timeout.
func NewHTTPPublisher(baseURL string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// eventBody mirrors the POST /events request.
type eventBody struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Publish posts e and expects 202 Accepted.
func (p *HTTPPublisher) Publish(ctx context.Context, e model.RawEvent) error {
	jsonData, err := json.Marshal(eventBody{ID: e.ID, Type: e.Type, Payload: e.Payload})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/events", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// CheckHealth verifies the service answers /healthz.
func (p *HTTPPublisher) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
