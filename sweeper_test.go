package pulsar

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweepable struct {
	calls atomic.Int64
}

func (c *countingSweepable) Sweep(time.Time) int {
	c.calls.Add(1)
	return 1
}

func TestSweeperRunsAndStops(t *testing.T) {
	target := &countingSweepable{}
	s := NewSweeper(5*time.Millisecond, nil, target)

	s.Start()
	s.Start() // second Start is a no-op

	assert.Eventually(t, func() bool {
		return target.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop() // second Stop is safe

	after := target.calls.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, after, target.calls.Load())
}
