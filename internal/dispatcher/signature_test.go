package dispatcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"id":"evt-1","type":"price.changed"}`)

	t.Run("is deterministic for same payload and secret", func(t *testing.T) {
		first, err := Sign(payload, "secret-1")
		require.NoError(t, err)
		second, err := Sign(payload, "secret-1")
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("has the sha256 prefix and hex digest", func(t *testing.T) {
		sig, err := Sign(payload, "secret-1")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(sig, "sha256="))
		// 64 hex chars for a SHA-256 digest
		assert.Len(t, strings.TrimPrefix(sig, "sha256="), 64)
	})

	t.Run("changes when a payload byte changes", func(t *testing.T) {
		sig, err := Sign(payload, "secret-1")
		require.NoError(t, err)

		mutated := append([]byte{}, payload...)
		mutated[0] = '['
		mutatedSig, err := Sign(mutated, "secret-1")
		require.NoError(t, err)

		assert.NotEqual(t, sig, mutatedSig)
	})

	t.Run("changes with the secret", func(t *testing.T) {
		first, err := Sign(payload, "secret-1")
		require.NoError(t, err)
		second, err := Sign(payload, "secret-2")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("rejects an empty secret", func(t *testing.T) {
		_, err := Sign(payload, "")
		assert.Error(t, err)
	})
}
