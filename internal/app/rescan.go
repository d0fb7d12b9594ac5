package app

import (
	"context"
	"log"
	"time"

	"github.com/reelwright/hevcsup/internal/scanner"
	"github.com/robfig/cron/v3"
)

// rescanner drives the optional scheduled full rescan (§4.8, "scheduled
// rescans may run on a fixed interval if configured"), generalized from the
// teacher's per-job cron table down to the single SUPERVISOR_SCAN_INTERVAL
// value, still built on robfig/cron/v3 and a cancellable-context job.
type rescanner struct {
	scan     *scanner.Scanner
	interval time.Duration
	cron     *cron.Cron
	cancel   context.CancelFunc
}

func newRescanner(scan *scanner.Scanner, interval time.Duration) *rescanner {
	return &rescanner{
		scan:     scan,
		interval: interval,
		cron:     cron.New(),
	}
}

// start schedules the recurring rescan job and begins running it. ctx
// governs the lifetime of each triggered scan; cancelling it (via stop or
// the parent shutdown) aborts whatever scan is in flight.
func (r *rescanner) start(parent context.Context) {
	jobCtx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	spec := "@every " + r.interval.String()
	_, err := r.cron.AddFunc(spec, func() {
		log.Printf("scheduled rescan starting (interval %s)", r.interval)
		if err := r.scan.ScanAll(jobCtx); err != nil {
			log.Printf("scheduled rescan failed: %v", err)
		}
	})
	if err != nil {
		log.Printf("could not schedule rescan: %v", err)
		return
	}
	r.cron.Start()
}

// stop halts the cron scheduler and cancels any rescan currently running.
func (r *rescanner) stop() {
	if r.cron != nil {
		stopCtx := r.cron.Stop()
		<-stopCtx.Done()
	}
	if r.cancel != nil {
		r.cancel()
	}
}
