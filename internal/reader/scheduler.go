package reader

import (
	"context"
	"time"

	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// Refresher runs the refresh pipeline on a fixed period in the
// background. A period of zero or less performs a single refresh and
// stops. Cycle failures are logged and never break the schedule.
type Refresher struct {
	reader *Reader
	period time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a Refresher for the given reader and period.
func NewRefresher(reader *Reader, period time.Duration) *Refresher {
	return &Refresher{
		reader: reader,
		period: period,
	}
}

// Start launches the background refresh loop. The first cycle runs
// immediately.
func (r *Refresher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx)
}

// Stop cancels the loop and waits for it to finish.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	r.refreshOnce(ctx)
	if r.period <= 0 {
		logger.Info("Refresh period disabled, single-shot refresh only")
		return
	}

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.refreshOnce(ctx)
		case <-ctx.Done():
			logger.Info("Cache refresher stopping")
			return
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	logger.Info("Bitbucket periodic (timed) gather")
	if err := r.reader.Refresh(ctx); err != nil {
		logger.Errorf("Refresh failed: %v", err)
	}
}
