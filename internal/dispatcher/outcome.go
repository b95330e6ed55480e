package dispatcher

import (
	"fmt"
	"math"
	"time"

	"github.com/Symple44/TopSteel-sub008/internal/models"
)

// Outcome is the state-machine decision after one delivery attempt.
type Outcome struct {
	Status   models.DeliveryStatus
	Response *models.DeliveryResponse
	RetryIn  time.Duration
}

// Evaluate maps an HTTP result onto the delivery state machine. Any 2xx is
// terminal success. Everything else consumes retry budget: while attempts
// remain the delivery stays pending with an exponential-backoff re-attempt,
// otherwise it fails terminally.
func Evaluate(result Result, attempts int, policy models.RetryPolicy) Outcome {
	if result.Err == nil && result.StatusCode >= 200 && result.StatusCode < 300 {
		return Outcome{
			Status: models.DeliverySuccess,
			Response: &models.DeliveryResponse{
				StatusCode: result.StatusCode,
				Body:       result.Body,
			},
		}
	}

	response := &models.DeliveryResponse{StatusCode: result.StatusCode}
	if result.Err != nil {
		response.Error = result.Err.Error()
	} else {
		response.Error = fmt.Sprintf("HTTP %d", result.StatusCode)
		response.Body = result.Body
	}

	if attempts < policy.MaxRetries {
		return Outcome{
			Status:   models.DeliveryPending,
			Response: response,
			RetryIn:  BackoffDelay(policy, attempts),
		}
	}

	return Outcome{
		Status:   models.DeliveryFailed,
		Response: response,
	}
}

// BackoffDelay returns the wait before the next attempt once `attempts`
// attempts have failed: retryDelay * multiplier^(attempts-1). The first
// failure waits the base delay.
func BackoffDelay(policy models.RetryPolicy, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delayMs := float64(policy.RetryDelayMs) * math.Pow(policy.BackoffMultiplier, float64(attempts-1))
	return time.Duration(delayMs) * time.Millisecond
}
