package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tidemarket/escrow/internal/model"
)

// DefaultSampleInterval is used when the caller passes a non-positive
// interval.
const DefaultSampleInterval = 10 * time.Second

// TotalsSource provides the engine counters the sampler publishes.
type TotalsSource interface {
	Totals() model.Totals
	Outstanding() uint64
}

// Sampler periodically copies engine totals into the registry gauges.
type Sampler struct {
	interval time.Duration
	src      TotalsSource
	reg      *Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSampler creates a sampler reading src every interval.
func NewSampler(interval time.Duration, src TotalsSource, reg *Registry, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		interval: interval,
		src:      src,
		reg:      reg,
		logger:   logger,
	}
}

// Start begins the sampling loop.
func (s *Sampler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("metrics sampler started", "interval", s.interval)
	return nil
}

// Stop gracefully shuts down the sampler.
func (s *Sampler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("metrics sampler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main sampling loop.
func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sample immediately on start.
	s.sample()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	s.reg.SetTotals(s.src.Totals())
	s.reg.SetOutstanding(s.src.Outstanding())
}
