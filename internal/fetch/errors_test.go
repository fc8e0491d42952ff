package fetch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "rate-limit", KindRateLimit.String())
	assert.Equal(t, "server", KindServer.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "malformed", KindMalformed.String())
}

func TestKindOfUnwrapsThroughWrapping(t *testing.T) {
	inner := newError(KindTimeout, "balance", "https://api.tzkt.io/v1/accounts/tz1", errors.New("deadline"))
	wrapped := fmt.Errorf("refreshing wallet: %w", inner)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, kind)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(newError(KindRateLimit, "tokens", "u", errors.New("status 429"))))
	assert.False(t, IsRateLimit(newError(KindServer, "tokens", "u", errors.New("status 500"))))
	assert.False(t, IsRateLimit(errors.New("plain")))
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := newError(KindServer, "balance", "https://example.test/v1/accounts", errors.New("status 500"))
	msg := err.Error()
	assert.Contains(t, msg, "balance")
	assert.Contains(t, msg, "server")
	assert.Contains(t, msg, "https://example.test/v1/accounts")
}
