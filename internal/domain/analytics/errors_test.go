package analytics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRetryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimit, KindServer, KindNetwork}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "kind %s should be retryable", k)
	}

	terminal := []ErrorKind{KindAuthentication, KindValidation, KindNotFound, KindMaxRetries, KindInvalidResponse}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), "kind %s should not be retryable", k)
	}
}

func TestErrorKindCritical(t *testing.T) {
	critical := []ErrorKind{KindAuthentication, KindNetwork, KindMaxRetries}
	for _, k := range critical {
		assert.True(t, k.Critical(), "kind %s should be critical", k)
	}

	routine := []ErrorKind{KindRateLimit, KindValidation, KindNotFound, KindServer, KindInvalidResponse}
	for _, k := range routine {
		assert.False(t, k.Critical(), "kind %s should not be critical", k)
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindNetwork, "fetchPage", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetchPage")
	assert.Contains(t, err.Error(), "NETWORK")

	wrapped := fmt.Errorf("stream stock: %w", err)
	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNetwork))
	assert.False(t, IsKind(wrapped, KindServer))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(errors.New("plain"), KindServer))
}

func TestErrorWithoutCause(t *testing.T) {
	err := &Error{Kind: KindMaxRetries, Op: "fetchPage", Attempts: 3}
	require.NoError(t, err.Unwrap())
	assert.Contains(t, err.Error(), "MAX_RETRIES")
	assert.True(t, err.Critical())
	assert.False(t, err.Retryable())
}
