/*
scheduler.go - Automated monthly accrual scheduler

PURPOSE:
  Periodically runs the monthly accrual so every employed user's ledger
  gains the current month's row without waiting for a balance read to
  backfill it. In January the accrual run also applies year-end carryover.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The underlying operation is idempotent, so running hourly is safe:
    months already logged and rollovers already applied are skipped

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - vacation/accrual.go: ProcessMonthlyAccrual, ProcessYearRollover
  - handlers.go: RunMonthlyAccrual endpoint (manual trigger)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/vacation-engine/vacation"
)

// AccrualScheduler drives the monthly accrual in the background.
type AccrualScheduler struct {
	Engine        *vacation.AccrualEngine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(engine *vacation.AccrualEngine) *AccrualScheduler {
	return &AccrualScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AccrualScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.process()

	for {
		select {
		case <-as.ticker.C:
			as.process()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) process() {
	ctx := context.Background()
	started := time.Now()

	if err := as.Engine.ProcessMonthlyAccrual(ctx); err != nil {
		log.Printf("[Scheduler] Monthly accrual failed: %v", err)
		return
	}

	log.Printf("[Scheduler] Monthly accrual completed in %v", time.Since(started).Round(time.Millisecond))
}

// RunNow triggers an immediate run (for testing/admin).
func (as *AccrualScheduler) RunNow() {
	as.process()
}
