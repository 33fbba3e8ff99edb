package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hray3182/DoseLine/internal/clock"
	"github.com/hray3182/DoseLine/internal/metrics"
)

type MissedLogs interface {
	SweepMissed(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper closes out PENDING logs whose missed window has elapsed. A log is
// never swept before scheduled_at + missed window.
type Sweeper struct {
	logs  MissedLogs
	clock clock.Clock
}

func NewSweeper(logs MissedLogs, clk clock.Clock) *Sweeper {
	return &Sweeper{logs: logs, clock: clk}
}

func (s *Sweeper) SweepMissed(ctx context.Context) (int64, error) {
	n, err := s.logs.SweepMissed(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep missed doses: %w", err)
	}
	metrics.RecordMissed(n)
	return n, nil
}
