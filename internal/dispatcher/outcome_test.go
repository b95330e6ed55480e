package dispatcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Symple44/TopSteel-sub008/internal/models"
)

func TestEvaluate(t *testing.T) {
	policy := models.DefaultRetryPolicy()

	t.Run("2xx is terminal success", func(t *testing.T) {
		out := Evaluate(Result{StatusCode: 204, Body: ""}, 1, policy)

		assert.Equal(t, models.DeliverySuccess, out.Status)
		require.NotNil(t, out.Response)
		assert.Equal(t, 204, out.Response.StatusCode)
		assert.Empty(t, out.Response.Error)
	})

	t.Run("5xx with budget left stays pending", func(t *testing.T) {
		out := Evaluate(Result{StatusCode: 500, Body: "boom"}, 1, policy)

		assert.Equal(t, models.DeliveryPending, out.Status)
		require.NotNil(t, out.Response)
		assert.Equal(t, 500, out.Response.StatusCode)
		assert.Equal(t, "HTTP 500", out.Response.Error)
		assert.Equal(t, "boom", out.Response.Body)
		assert.Equal(t, time.Second, out.RetryIn)
	})

	t.Run("network error records zero status", func(t *testing.T) {
		out := Evaluate(Result{Err: errors.New("connection refused")}, 1, policy)

		assert.Equal(t, models.DeliveryPending, out.Status)
		require.NotNil(t, out.Response)
		assert.Equal(t, 0, out.Response.StatusCode)
		assert.Equal(t, "connection refused", out.Response.Error)
	})

	t.Run("exhausted budget fails terminally", func(t *testing.T) {
		out := Evaluate(Result{StatusCode: 503}, policy.MaxRetries, policy)

		assert.Equal(t, models.DeliveryFailed, out.Status)
		assert.Zero(t, out.RetryIn)
	})

	t.Run("non-2xx success codes do not count", func(t *testing.T) {
		out := Evaluate(Result{StatusCode: 302}, 1, policy)

		assert.Equal(t, models.DeliveryPending, out.Status)
	})
}

func TestBackoffDelay(t *testing.T) {
	policy := models.RetryPolicy{MaxRetries: 3, RetryDelayMs: 1000, BackoffMultiplier: 2}

	assert.Equal(t, 1000*time.Millisecond, BackoffDelay(policy, 1))
	assert.Equal(t, 2000*time.Millisecond, BackoffDelay(policy, 2))
	assert.Equal(t, 4000*time.Millisecond, BackoffDelay(policy, 3))

	t.Run("clamps attempts below one", func(t *testing.T) {
		assert.Equal(t, 1000*time.Millisecond, BackoffDelay(policy, 0))
	})

	t.Run("honors a custom multiplier", func(t *testing.T) {
		custom := models.RetryPolicy{MaxRetries: 5, RetryDelayMs: 200, BackoffMultiplier: 3}
		assert.Equal(t, 1800*time.Millisecond, BackoffDelay(custom, 3))
	})
}
