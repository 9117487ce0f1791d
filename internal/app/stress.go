package app

import (
	"context"
	"sync/atomic"

	"github.com/MrWong99/fitcoach/internal/config"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/stress"
)

// stressSwitch serves stress runs from the most recently configured harness.
// A reload swaps the harness; runs already in flight keep the old one.
type stressSwitch struct {
	runner stress.Runner
	corpus *stress.Corpus
	opts   []stress.Option
	h      atomic.Pointer[stress.Harness]
}

// harnessConfig converts the stress config section.
func harnessConfig(sc config.StressConfig) stress.Config {
	return stress.Config{
		DelayBetweenQuestions: sc.DelayBetweenQuestions,
		IncludeContext:        sc.IncludeContext,
		Context: orchestrator.RunContext{
			UserID:  sc.Context.UserID,
			Screen:  sc.Context.Screen,
			Profile: sc.Context.Profile,
		},
		StopOnCriticalError: sc.StopOnCriticalError,
		RandomizeOrder:      sc.RandomizeOrder,
		SlowThreshold:       sc.SlowThreshold,
		LongResponseChars:   sc.LongResponseChars,
		QuickPerCategory:    sc.QuickPerCategory,
	}
}

func (s *stressSwitch) configure(sc config.StressConfig) error {
	h, err := stress.New(s.runner, s.corpus, harnessConfig(sc), s.opts...)
	if err != nil {
		return err
	}
	s.h.Store(h)
	return nil
}

func (s *stressSwitch) current() *stress.Harness { return s.h.Load() }

func (s *stressSwitch) RunCategories(ctx context.Context, categories []string, progress chan<- stress.Progress) (*stress.Outcome, error) {
	return s.current().RunCategories(ctx, categories, progress)
}

func (s *stressSwitch) RunQuickSubset(ctx context.Context, progress chan<- stress.Progress) (*stress.Outcome, error) {
	return s.current().RunQuickSubset(ctx, progress)
}
