package source

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(5))
	assert.Equal(t, time.Second, p.Delay(50))
}

func TestPolicyJitterBounds(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestPolicyDelayNeverOverflows(t *testing.T) {
	unbounded := Policy{InitialDelay: 250 * time.Millisecond, Multiplier: 2}
	prev := time.Duration(0)
	for _, attempt := range []int{1, 10, 30, 40, 62, 63, 64, 70, 200, 10000} {
		d := unbounded.Delay(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, time.Duration(math.MaxInt64), unbounded.Delay(200))

	unbounded.Jitter = true
	assert.Equal(t, time.Duration(math.MaxInt64), unbounded.Delay(200))
}

func TestPolicyJitterStaysWithinMaxDelay(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	for range 100 {
		assert.Equal(t, time.Second, p.Delay(50))
		d := p.Delay(4)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestPolicyExhausted(t *testing.T) {
	assert.False(t, Policy{}.Exhausted(1000))
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxAttempts: -1}.Validate())
	assert.Error(t, Policy{InitialDelay: time.Second, MaxDelay: time.Millisecond}.Validate())
	assert.Error(t, Policy{Multiplier: -2}.Validate())
}
