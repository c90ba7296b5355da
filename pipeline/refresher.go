package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "omnidata/config"
	"omnidata/logger"
	"omnidata/models"
	"omnidata/source"
)

// Outcome describes how a single asset was priced during a batch.
type Outcome struct {
	Symbol string
	Price  float64
	// Source is "live" for API prices, "simulated" for fallback prices and
	// "unchanged" when no price could be produced.
	Source string
}

// Result summarizes one completed refresh batch.
type Result struct {
	BatchID  string
	Outcomes []Outcome
	Duration time.Duration
}

type batch struct {
	id        string
	ctx       context.Context
	wg        sync.WaitGroup
	outcomes  []Outcome
	attempted int64
	cancelled int32
}

func (b *batch) cancel() {
	atomic.StoreInt32(&b.cancelled, 1)
}

// isCancelled reports whether the batch was abandoned, either through its own
// context or through pipeline shutdown.
func (b *batch) isCancelled() bool {
	return atomic.LoadInt32(&b.cancelled) == 1 || b.ctx.Err() != nil
}

type task struct {
	asset *models.Asset
	index int
	batch *batch
}

// Refresher owns a fixed pool of long-lived workers that drain a shared
// bounded queue of assets, price each one exactly once per batch and signal
// completion to the submitter. Workers outlive individual batches.
type Refresher struct {
	config   *appconfig.Config
	quote    source.Quote
	fallback source.Fallback
	tasks    chan task
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stopped  bool
	log      *logger.Log

	// batchMu serializes batches so each asset has at most one concurrent
	// mutator.
	batchMu sync.Mutex

	// Metrics
	assetsAttempted  int64
	pricesUpdated    int64
	fallbacksApplied int64
	errorsCount      int64
}

// NewRefresher creates a refresher. fallback may be source.NoFallback{} to
// leave unresolved assets untouched.
func NewRefresher(cfg *appconfig.Config, quote source.Quote, fallback source.Fallback) *Refresher {
	return &Refresher{
		config:   cfg,
		quote:    quote,
		fallback: fallback,
		tasks:    make(chan task, cfg.Refresh.QueueSize),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the worker pool. Workers are created once per process
// lifetime and serve every subsequent batch.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("refresher already stopped")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("refresher").WithFields(logger.Fields{"operation": "start"})

	numWorkers := r.config.Refresh.Workers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers, "queue_size": cap(r.tasks)}).Info("starting refresh workers")

	for i := 0; i < numWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	go r.metricsReporter(ctx)

	log.Info("refresher started successfully")
	return nil
}

// Stop lets an in-flight batch finish, then shuts the workers down and waits
// for them to exit.
func (r *Refresher) Stop() {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.stopped = true
	close(r.tasks)
	r.mu.Unlock()

	r.log.WithComponent("refresher").Info("stopping refresher")
	r.wg.Wait()
	r.log.WithComponent("refresher").Info("refresher stopped")
}

// Refresh enqueues every asset of the portfolio and blocks until each one has
// been attempted exactly once. Attempted means priced, fallback-priced or
// deliberately left unchanged; a failed lookup never fails the batch.
// Batches are serialized; concurrent calls queue behind each other.
func (r *Refresher) Refresh(ctx context.Context, portfolio models.Portfolio) (Result, error) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return Result{}, fmt.Errorf("refresher not running")
	}

	b := &batch{
		id:       uuid.NewString(),
		ctx:      ctx,
		outcomes: make([]Outcome, len(portfolio)),
	}
	b.wg.Add(len(portfolio))

	log := r.log.WithComponent("refresher").WithFields(logger.Fields{
		"batch_id": b.id,
		"assets":   len(portfolio),
	})
	log.Info("starting refresh batch")
	start := time.Now()

	var cause error
	enqueued := len(portfolio)
	for i, asset := range portfolio {
		select {
		case r.tasks <- task{asset: asset, index: i, batch: b}:
			continue
		case <-ctx.Done():
			cause = ctx.Err()
		case <-r.ctx.Done():
			cause = r.ctx.Err()
		}
		// Release the completion barrier for items never enqueued.
		for j := i; j < len(portfolio); j++ {
			b.outcomes[j] = Outcome{Symbol: portfolio[j].Symbol(), Price: portfolio[j].Price(), Source: "unchanged"}
			b.wg.Done()
		}
		enqueued = i
		break
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	if cause != nil {
		log.WithFields(logger.Fields{"enqueued": enqueued}).Warn("refresh batch cancelled during enqueue")
		return r.abandon(b, done, cause)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return r.abandon(b, done, ctx.Err())
	case <-r.ctx.Done():
		return r.abandon(b, done, r.ctx.Err())
	}

	duration := time.Since(start)
	log.WithFields(logger.Fields{
		"attempted":   atomic.LoadInt64(&b.attempted),
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}).Info("refresh batch complete")
	logger.LogPerformanceEntry(log, "refresher", "refresh_batch", duration, logger.Fields{
		"batch_id":  b.id,
		"attempted": atomic.LoadInt64(&b.attempted),
	})

	return Result{BatchID: b.id, Outcomes: b.outcomes, Duration: duration}, nil
}

// abandon settles a cancelled batch before Refresh returns: queued items are
// acknowledged without processing and the in-flight item is waited for, so no
// worker touches the portfolio after the caller regains control. Workers may
// have exited already when the pipeline context is cancelled, which is why
// the queue is drained here rather than left to them.
func (r *Refresher) abandon(b *batch, done chan struct{}, cause error) (Result, error) {
	b.cancel()
	for {
		select {
		case t := <-r.tasks:
			t.batch.outcomes[t.index] = Outcome{Symbol: t.asset.Symbol(), Price: t.asset.Price(), Source: "unchanged"}
			t.batch.wg.Done()
		case <-done:
			return Result{BatchID: b.id, Outcomes: b.outcomes}, cause
		}
	}
}

func (r *Refresher) worker(workerID int) {
	defer r.wg.Done()

	log := r.log.WithComponent("refresher").WithFields(logger.Fields{
		"worker_id": workerID,
	})

	log.Debug("refresh worker started")

	for {
		select {
		case <-r.ctx.Done():
			log.Debug("worker stopped due to context cancellation")
			return
		case t, ok := <-r.tasks:
			if !ok {
				log.Debug("task channel closed, worker stopping")
				return
			}
			r.process(t, log)
		}
	}
}

// process prices one asset. It always acknowledges the item, even on panic,
// so a single bad asset can never stall the batch or kill the worker.
func (r *Refresher) process(t task, log *logger.Entry) {
	defer t.batch.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			atomic.AddInt64(&r.errorsCount, 1)
			log.WithFields(logger.Fields{
				"symbol": t.asset.Symbol(),
				"panic":  rec,
			}).Error("worker recovered from panic while processing asset")
			t.batch.outcomes[t.index] = Outcome{Symbol: t.asset.Symbol(), Price: t.asset.Price(), Source: "unchanged"}
		}
	}()

	atomic.AddInt64(&t.batch.attempted, 1)
	atomic.AddInt64(&r.assetsAttempted, 1)

	asset := t.asset
	if t.batch.isCancelled() {
		// Cancelled batch: acknowledge without touching the asset.
		t.batch.outcomes[t.index] = Outcome{Symbol: asset.Symbol(), Price: asset.Price(), Source: "unchanged"}
		return
	}

	oldPrice := asset.Price()
	price, ok := r.quote.Fetch(t.batch.ctx, asset.Symbol())
	if ok {
		asset.UpdatePrice(price)
		atomic.AddInt64(&r.pricesUpdated, 1)
		t.batch.outcomes[t.index] = Outcome{Symbol: asset.Symbol(), Price: asset.Price(), Source: "live"}

		fields := logger.Fields{
			"batch_id": t.batch.id,
			"symbol":   asset.Symbol(),
			"price":    price,
		}
		if oldPrice > 0 {
			fields["change_pct"] = (price - oldPrice) / oldPrice * 100
		}
		log.WithFields(fields).Info("asset price updated")
		return
	}

	if t.batch.isCancelled() {
		// The lookup failed because the batch was abandoned mid-flight;
		// do not substitute a simulated price for it.
		t.batch.outcomes[t.index] = Outcome{Symbol: asset.Symbol(), Price: asset.Price(), Source: "unchanged"}
		return
	}

	if simulated, applied := r.fallback.Price(asset); applied {
		asset.UpdatePrice(simulated)
		atomic.AddInt64(&r.fallbacksApplied, 1)
		logger.IncrementFallback()
		t.batch.outcomes[t.index] = Outcome{Symbol: asset.Symbol(), Price: asset.Price(), Source: "simulated"}
		log.WithFields(logger.Fields{
			"batch_id": t.batch.id,
			"symbol":   asset.Symbol(),
			"price":    simulated,
		}).Warn("live lookup unavailable, applied simulated price")
		return
	}

	t.batch.outcomes[t.index] = Outcome{Symbol: asset.Symbol(), Price: asset.Price(), Source: "unchanged"}
	log.WithFields(logger.Fields{
		"batch_id": t.batch.id,
		"symbol":   asset.Symbol(),
	}).Warn("price unavailable, keeping previous value")
}

// Stats is a snapshot of the refresher's lifetime counters.
type Stats struct {
	AssetsAttempted  int64
	PricesUpdated    int64
	FallbacksApplied int64
	Errors           int64
}

func (r *Refresher) Stats() Stats {
	return Stats{
		AssetsAttempted:  atomic.LoadInt64(&r.assetsAttempted),
		PricesUpdated:    atomic.LoadInt64(&r.pricesUpdated),
		FallbacksApplied: atomic.LoadInt64(&r.fallbacksApplied),
		Errors:           atomic.LoadInt64(&r.errorsCount),
	}
}

func (r *Refresher) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.Stats()
			r.log.WithComponent("refresher").WithFields(logger.Fields{
				"assets_attempted":  stats.AssetsAttempted,
				"prices_updated":    stats.PricesUpdated,
				"fallbacks_applied": stats.FallbacksApplied,
				"errors":            stats.Errors,
				"queue_len":         len(r.tasks),
				"queue_cap":         cap(r.tasks),
			}).Info("refresher statistics")
		}
	}
}
