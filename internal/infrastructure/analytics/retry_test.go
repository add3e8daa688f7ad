package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 2.0, p.Multiplier)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 3, p.MaxAttempts)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(4))
	// 32s exceeds the cap.
	assert.Equal(t, 30*time.Second, p.Delay(5))
	assert.Equal(t, 30*time.Second, p.Delay(50))

	// Negative attempts behave like the first.
	assert.Equal(t, 1*time.Second, p.Delay(-1))
}

func TestRetryPolicyDelayCapOnOverflow(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Hour, Multiplier: 1e12, MaxDelay: 30 * time.Second, MaxAttempts: 3}
	assert.Equal(t, 30*time.Second, p.Delay(10))
}
