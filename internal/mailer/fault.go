package mailer

import (
	"context"
	"errors"
	"math/rand/v2"
)

// ErrInjectedFailure is returned by FaultInjector for a simulated failure.
var ErrInjectedFailure = errors.New("mailer: injected delivery failure")

// FaultInjector fails a fraction of sends before they reach the wrapped
// sender, for exercising retry and dead-letter paths.
type FaultInjector struct {
	next Sender
	rate float64
	roll func() float64
}

// WithFaultInjection wraps next when rate is positive; otherwise it returns
// next unchanged.
func WithFaultInjection(next Sender, rate float64) Sender {
	if rate <= 0 {
		return next
	}
	return &FaultInjector{next: next, rate: rate, roll: rand.Float64} // #nosec G404 -- test-only fault injection
}

func (f *FaultInjector) Send(ctx context.Context, msg Message) (string, error) {
	if f.roll() < f.rate {
		return "", ErrInjectedFailure
	}
	return f.next.Send(ctx, msg)
}
