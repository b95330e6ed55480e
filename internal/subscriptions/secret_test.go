package subscriptions

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, secret, 64)
	_, err = hex.DecodeString(secret)
	assert.NoError(t, err)

	other, err := NewSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}
