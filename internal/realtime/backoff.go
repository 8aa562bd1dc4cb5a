package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 16 * time.Second
)

// Backoff yields doubling reconnect delays capped at a ceiling, with no
// jitter and no overall deadline.
type Backoff struct {
	b *backoff.ExponentialBackOff
}

// NewBackoff returns a Backoff starting at initial and capped at ceiling.
func NewBackoff(initial, ceiling time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if ceiling < initial {
		ceiling = initial
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = ceiling
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return &Backoff{b: eb}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	return b.b.NextBackOff()
}

// Reset restarts the sequence at the initial delay.
func (b *Backoff) Reset() {
	b.b.Reset()
}
