/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Periodically compares every customer's stored balance with the sum of
  their ledger entries and reports any drift. Nothing is repaired; the
  ledger logs each discrepancy and the metrics observer exports the count.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Audits the configured stores, or every store that has customers
  - Stores are audited concurrently, a few at a time

CONFIGURATION:
  - Interval: How often to audit (default: 1 hour)
  - Enabled:  Whether scheduler is active (default: true)
  - Stores:   Restrict the audit to these stores (default: all)

USAGE:
  scheduler := NewAuditScheduler(ledger, logger)
  scheduler.Start()
  // ... later
  scheduler.Schedule()  // last and next run, shown by GET /credit/audit
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetCreditAudit endpoint (on-demand audit of one store)
  - credit/audit.go: Ledger.Audit
*/
package api

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentAudits bounds how many stores are audited at once.
const maxConcurrentAudits = 4

// AuditRun is the outcome of auditing one store.
type AuditRun struct {
	StoreID credit.StoreID
	Report  credit.AuditReport
	Err     error
}

// AuditSchedule describes the scheduler's timing. Zero times mean "not yet"
// or, for NextRun, "not running".
type AuditSchedule struct {
	Running  bool
	Interval time.Duration
	LastRun  time.Time
	NextRun  time.Time
}

// AuditScheduler runs Ledger.Audit on a timer.
type AuditScheduler struct {
	Ledger   *credit.Ledger
	Interval time.Duration
	Enabled  bool
	Stores   []credit.StoreID

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// guarded by stateMu; run updates it while Stop holds mu
	stateMu  sync.Mutex
	schedule AuditSchedule
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(ledger *credit.Ledger, logger *slog.Logger) *AuditScheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditScheduler{
		Ledger:   ledger,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger,
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("audit scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.setNextRun(time.Now().Add(s.Interval))
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger.Info("audit scheduler started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for an in-flight audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.setNextRun(time.Time{})
	s.logger.Info("audit scheduler stopped")
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case tick := <-ticker.C:
			s.setNextRun(tick.Add(s.Interval))
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow audits every target store and returns one result per store,
// ordered by store id. A failure in one store does not stop the others.
func (s *AuditScheduler) RunNow(ctx context.Context) []AuditRun {
	stores, err := s.targets(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing stores for audit", "error", err)
		return nil
	}

	runs := make([]AuditRun, len(stores))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAudits)
	for i, storeID := range stores {
		g.Go(func() error {
			report, err := s.Ledger.Audit(gctx, storeID)
			runs[i] = AuditRun{StoreID: storeID, Report: report, Err: err}
			return nil
		})
	}
	g.Wait()
	s.setLastRun(time.Now())

	var failed, drifted int
	for _, run := range runs {
		switch {
		case run.Err != nil:
			failed++
			s.logger.ErrorContext(ctx, "audit failed", "store_id", run.StoreID, "error", run.Err)
		case !run.Report.Consistent():
			drifted++
		}
	}
	s.logger.InfoContext(ctx, "audit completed",
		"stores", len(runs),
		"with_discrepancies", drifted,
		"failed", failed)
	return runs
}

func (s *AuditScheduler) targets(ctx context.Context) ([]credit.StoreID, error) {
	if len(s.Stores) > 0 {
		stores := append([]credit.StoreID(nil), s.Stores...)
		sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
		return stores, nil
	}
	return s.Ledger.Store().StoreIDs(ctx)
}

// Schedule reports when the last audit finished and when the ticker fires
// next.
func (s *AuditScheduler) Schedule() AuditSchedule {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := s.schedule
	out.Interval = s.Interval
	out.Running = !out.NextRun.IsZero()
	return out
}

func (s *AuditScheduler) setNextRun(t time.Time) {
	s.stateMu.Lock()
	s.schedule.NextRun = t
	s.stateMu.Unlock()
}

func (s *AuditScheduler) setLastRun(t time.Time) {
	s.stateMu.Lock()
	s.schedule.LastRun = t
	s.stateMu.Unlock()
}
