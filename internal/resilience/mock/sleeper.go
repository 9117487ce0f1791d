// Package mock provides test doubles for the resilience package.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/fitcoach/internal/resilience"
)

// Sleeper records requested delays and returns immediately. It still honours
// context cancellation so cancellation paths can be exercised.
type Sleeper struct {
	mu     sync.Mutex
	delays []time.Duration

	// OnSleep, if set, runs before Sleep returns. Tests use it to cancel a
	// context mid-backoff.
	OnSleep func(d time.Duration)
}

var _ resilience.Sleeper = (*Sleeper)(nil)

// Sleep records d.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	hook := s.OnSleep
	s.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Delays returns a copy of every delay requested so far.
func (s *Sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}
