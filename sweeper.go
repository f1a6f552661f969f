package pulsar

import (
	"sync"
	"time"

	"github.com/psyto/pulsar/logger"
)

// Sweepable is TTL-bounded state that can evict expired entries.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically evicts expired entries from registered stores. It is
// an explicitly owned background task: started once at service
// initialization and stopped at shutdown, so no timers leak across test
// runs.
type Sweeper struct {
	interval time.Duration
	targets  []Sweepable
	log      logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper creates a sweeper over the given stores.
func NewSweeper(interval time.Duration, log logger.Logger, targets ...Sweepable) *Sweeper {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Sweeper{
		interval: interval,
		targets:  targets,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling Start more than once is a no-op.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop halts the loop and waits for it to exit. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			removed := 0
			for _, t := range s.targets {
				removed += t.Sweep(now)
			}
			if removed > 0 {
				s.log.Debug("sweep evicted expired entries", map[string]any{
					"removed": removed,
				})
			}
		case <-s.stop:
			return
		}
	}
}
