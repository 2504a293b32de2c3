package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyValues(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, 2.0, p.Factor)
	assert.Equal(t, 64*time.Second, p.Max)
	assert.Equal(t, 0, p.MaxAttempts)
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Base: time.Second, Factor: 2.0, Max: 64 * time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelayCapsAtMax(t *testing.T) {
	p := Policy{Base: time.Second, Factor: 2.0, Max: 5 * time.Second}
	assert.Equal(t, 5*time.Second, p.Delay(10), "delay must never exceed Max")
}

func TestExhaustedUnboundedWhenMaxAttemptsZero(t *testing.T) {
	p := Policy{MaxAttempts: 0}
	assert.False(t, p.Exhausted(1_000_000))
}

func TestExhaustedRespectsMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}
