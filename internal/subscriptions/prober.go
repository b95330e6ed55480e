package subscriptions

import "context"

// ProbeResult is the outcome of a test call against a candidate webhook URL.
type ProbeResult struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"statusCode"`
	ResponseTime int64  `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// Prober issues the unsigned liveness test call used when validating a
// subscription URL and when an administrator sends a manual test webhook.
type Prober interface {
	Probe(ctx context.Context, url string, payload interface{}) ProbeResult
}
