package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/config"
	"github.com/Symple44/TopSteel-sub008/internal/models"
	"github.com/Symple44/TopSteel-sub008/internal/subscriptions"
)

// Result represents the raw outcome of one webhook HTTP attempt. StatusCode
// is 0 when no HTTP response was observed.
type Result struct {
	StatusCode int
	Body       string
	Err        error
	Duration   time.Duration
}

// Client performs the outbound HTTP calls of the webhook subsystem: signed
// delivery POSTs and unsigned liveness probes.
type Client struct {
	deliver *http.Client
	probe   *http.Client
	maxBody int
	logger  *zap.Logger
}

// NewClient creates an HTTP client with the configured timeouts
func NewClient(cfg *config.DispatcherConfig, logger *zap.Logger) *Client {
	return &Client{
		deliver: &http.Client{
			Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		},
		probe: &http.Client{
			Timeout: time.Duration(cfg.ProbeTimeoutSeconds) * time.Second,
		},
		maxBody: cfg.MaxResponseBodyBytes,
		logger:  logger,
	}
}

// Deliver POSTs a signed payload to a subscriber endpoint.
func (c *Client) Deliver(ctx context.Context, url string, payload []byte, signature string, eventType models.EventType, deliveryID uuid.UUID) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", string(eventType))
	req.Header.Set("X-Webhook-Delivery", deliveryID.String())

	startTime := time.Now()
	resp, err := c.deliver.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return Result{Err: fmt.Errorf("HTTP request failed: %w", err), Duration: duration}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBody)))
	if readErr != nil {
		c.logger.Warn("Failed to read webhook response body",
			zap.String("url", url),
			zap.Error(readErr),
		)
	}

	return Result{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Duration:   duration,
	}
}

// Probe implements subscriptions.Prober: an unsigned test POST with a short
// timeout, marked with the X-Webhook-Test header. Success means the endpoint
// answered below 400.
func (c *Client) Probe(ctx context.Context, url string, payload interface{}) subscriptions.ProbeResult {
	startTime := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return subscriptions.ProbeResult{Error: fmt.Sprintf("failed to marshal test payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return subscriptions.ProbeResult{
			Error:        fmt.Sprintf("failed to create HTTP request: %v", err),
			ResponseTime: time.Since(startTime).Milliseconds(),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Test", "true")

	resp, err := c.probe.Do(req)
	if err != nil {
		return subscriptions.ProbeResult{
			Error:        err.Error(),
			ResponseTime: time.Since(startTime).Milliseconds(),
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, int64(c.maxBody)))

	result := subscriptions.ProbeResult{
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(startTime).Milliseconds(),
	}
	if resp.StatusCode >= 400 {
		result.Error = fmt.Sprintf("URL returned %d", resp.StatusCode)
	} else {
		result.Success = true
	}
	return result
}
