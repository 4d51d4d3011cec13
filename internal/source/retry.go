package source

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Policy is a bounded exponential backoff.
type Policy struct {
	// MaxAttempts caps consecutive failures. Zero retries forever.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds up to a quarter of the delay at random.
	Jitter bool
}

// DefaultPolicy retries forever, which suits interactive use.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Validate rejects nonsensical settings.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 0:
		return errors.New("retry: MaxAttempts cannot be negative")
	case p.InitialDelay < 0:
		return errors.New("retry: InitialDelay cannot be negative")
	case p.MaxDelay < 0:
		return errors.New("retry: MaxDelay cannot be negative")
	case p.Multiplier < 0:
		return errors.New("retry: Multiplier cannot be negative")
	case p.MaxDelay > 0 && p.MaxDelay < p.InitialDelay:
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return nil
}

// Exhausted reports whether attempt consecutive failures use up the
// budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Delay returns the wait before retrying after attempt failures
// (attempt >= 1). Without MaxDelay the delay stops growing at the
// largest Duration; jitter never pushes it past the ceiling.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult == 0 {
		mult = 2
	}
	ceiling := time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		ceiling = p.MaxDelay
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt && delay < float64(ceiling); i++ {
		delay *= mult
	}
	d := ceiling
	if delay < float64(ceiling) {
		d = time.Duration(delay)
	}
	if p.Jitter && d >= 4 {
		d += min(rand.N(d/4), ceiling-d)
	}
	return d
}
