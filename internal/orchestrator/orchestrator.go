// Package orchestrator is the front door of the pipeline: Ingest,
// IngestBatch, Flush, GetDecisions, GetFieldStats, GetStatus, Close. It owns
// the buffer, the WAL file handle, and the metadata store, and drives the
// single logical flush pipeline of spec.md §4.8 step by step. See spec.md
// §4.8, §5. Overall shape — a single owned struct with an explicit
// lifecycle, a mutex-guarded buffer, size-or-timeout flush trigger — follows
// marilsoncampos-mock_interview's storage.BufferedWriter (periodicFlush
// ticker goroutine, flushLocked-under-mutex) and cmd/pipeline/main.go's
// runPipeline, adapted from "buffer then write" to "buffer, WAL, analyze,
// classify, reconcile, route, persist, truncate."
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/backoff"
	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/metadata"
	"github.com/schemaforge/schemaforge/internal/metrics"
	"github.com/schemaforge/schemaforge/internal/normalize"
	"github.com/schemaforge/schemaforge/internal/pipelineerr"
	"github.com/schemaforge/schemaforge/internal/record"
	"github.com/schemaforge/schemaforge/internal/router"
	"github.com/schemaforge/schemaforge/internal/stats"
	"github.com/schemaforge/schemaforge/internal/wal"
)

// Config controls buffering and retry behavior. Thresholds for classify
// live in classify.Thresholds, passed in at construction.
type Config struct {
	BufferSize      int
	BufferTimeout   time.Duration
	Table           string
	DeadLetterAfter int // flush attempts before a batch is quarantined; 0 disables dead-lettering
}

// DefaultConfig returns spec.md §6's defaults (buffer.size=50, timeout=30s,
// table="records").
func DefaultConfig() Config {
	return Config{BufferSize: 50, BufferTimeout: 30 * time.Second, Table: router.DefaultTable, DeadLetterAfter: 8}
}

// Status is the snapshot returned by GetStatus.
type Status struct {
	BufferSize            int       `json:"buffer_size"`
	TotalRecordsProcessed int64     `json:"total_records_processed"`
	LastFlushTime         time.Time `json:"last_flush_time"`
}

// FlushResult is returned by a successful Flush call.
type FlushResult struct {
	RecordsProcessed int
	DecisionsSQL     int
	DecisionsDoc     int
}

// DeadLetter is the subset of internal/deadletter.Queue the orchestrator
// needs; nil disables dead-lettering.
type DeadLetter interface {
	Push(recs []record.Record, reason string) error
}

// Orchestrator owns the buffer, the WAL, the metadata store, and drives
// flush cycles. Safe for concurrent Ingest/IngestBatch/Flush/GetStatus/
// GetDecisions/GetFieldStats calls from multiple goroutines: everything
// serializes through mu, per spec.md §5.
type Orchestrator struct {
	cfg Config
	log *zap.SugaredLogger

	normalizer *normalize.Normalizer
	analyzer   *stats.Analyzer
	classifier *classify.Classifier
	router     *router.Router
	meta       *metadata.Store
	wal        *wal.WAL
	deadLetter DeadLetter
	metrics    *metrics.Metrics

	mu                    sync.Mutex
	buffer                []record.Record
	decisions             map[string]classify.PlacementDecision
	totalRecordsProcessed int64
	lastFlushTime         time.Time
	lastFlushTimer        time.Time
	flushAttempts         int

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Deps bundles the collaborators an Orchestrator needs at construction.
// Router wraps the relational/document clients and the migrator per spec.md
// §4.6-4.7; WAL and metadata.Store persist durable state per §4.8/§6.
type Deps struct {
	WAL        *wal.WAL
	Meta       *metadata.Store
	Router     *router.Router
	DeadLetter DeadLetter
	Metrics    *metrics.Metrics
	Log        *zap.SugaredLogger
	Thresholds classify.Thresholds
}

// New constructs an Orchestrator and replays any pending WAL contents,
// triggering an immediate flush if the WAL was non-empty — spec.md §4.8's
// startup recovery. Metadata (decisions/stats/state) is loaded first; a
// missing or corrupt metadata file cold-starts that piece without aborting
// recovery of the others.
func New(ctx context.Context, cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.BufferTimeout <= 0 {
		cfg.BufferTimeout = 30 * time.Second
	}
	if cfg.Table == "" {
		cfg.Table = router.DefaultTable
	}

	o := &Orchestrator{
		cfg:        cfg,
		log:        deps.Log,
		normalizer: normalize.New(deps.Log),
		analyzer:   stats.New(),
		classifier: classify.New(deps.Thresholds),
		router:     deps.Router,
		meta:       deps.Meta,
		wal:        deps.WAL,
		deadLetter: deps.DeadLetter,
		metrics:    deps.Metrics,
		decisions:  make(map[string]classify.PlacementDecision),
		closed:     make(chan struct{}),
	}

	if err := o.recover(ctx); err != nil {
		return nil, err
	}

	o.wg.Add(1)
	go o.periodicFlush(ctx)

	return o, nil
}

func (o *Orchestrator) recover(ctx context.Context) error {
	decisions, err := o.meta.LoadDecisions()
	if err == nil && decisions != nil {
		o.decisions = decisions
	}
	state, _ := o.meta.LoadState()
	o.totalRecordsProcessed = state.TotalRecordsProcessed
	o.lastFlushTime = state.LastFlushTime
	fields, err := o.meta.LoadFieldStats()
	if err == nil && fields != nil {
		o.analyzer.LoadSnapshot(fields, state.TotalRecordsProcessed)
	}

	pending, err := o.wal.Replay()
	if err != nil {
		return fmt.Errorf("replay WAL on startup: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	if o.log != nil {
		o.log.Infow("replaying pending WAL records on startup", "count", len(pending))
	}
	o.buffer = append(o.buffer, pending...)
	if _, err := o.flushLocked(ctx); err != nil {
		// The WAL is left intact (flushLocked only truncates on success), so
		// the next successful flush trigger will retry these same records.
		if o.log != nil {
			o.log.Errorw("startup recovery flush failed; will retry on next trigger", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) periodicFlush(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.BufferTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			due := len(o.buffer) > 0 && time.Since(o.lastFlushTimer) >= o.cfg.BufferTimeout
			o.mu.Unlock()
			if due {
				if _, err := o.Flush(ctx); err != nil && o.log != nil {
					o.log.Errorw("periodic flush failed", "error", err)
				}
			}
		case <-o.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Ingest normalizes rec, appends it to the WAL (fsync before returning),
// and buffers it, triggering a flush if the buffer is at capacity. A
// top-level non-object value is rejected before it ever touches the WAL,
// per spec.md §7.
func (o *Orchestrator) Ingest(ctx context.Context, rec map[string]interface{}) error {
	return o.IngestBatch(ctx, []map[string]interface{}{rec})
}

// IngestBatch normalizes and buffers every record in recs in order,
// triggering a flush once if the buffer crosses capacity partway through.
func (o *Orchestrator) IngestBatch(ctx context.Context, recs []map[string]interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	shouldFlush := false
	for _, raw := range recs {
		validated, err := normalize.Validate(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", pipelineerr.ErrNotAnObject, err)
		}
		normalized := o.normalizer.Normalize(validated)
		if err := o.wal.Append(normalized); err != nil {
			return fmt.Errorf("append to WAL: %w", err)
		}
		o.buffer = append(o.buffer, normalized)
		if o.metrics != nil {
			o.metrics.RecordsIngested.Inc()
			o.metrics.BufferOccupancy.Set(float64(len(o.buffer)))
		}
		if len(o.buffer) >= o.cfg.BufferSize {
			shouldFlush = true
		}
	}
	if o.lastFlushTimer.IsZero() {
		o.lastFlushTimer = time.Now()
	}
	if shouldFlush || time.Since(o.lastFlushTimer) >= o.cfg.BufferTimeout {
		_, err := o.flushLocked(ctx)
		return err
	}
	return nil
}

// Flush snapshots the buffer and runs the full flush pipeline of spec.md
// §4.8: analyze, classify, reconcile the relational schema, route, persist
// metadata, truncate the WAL. On failure the snapshot is re-enqueued at the
// head of the buffer and the WAL is retained, so a subsequent crash still
// replays the batch.
func (o *Orchestrator) Flush(ctx context.Context) (FlushResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked(ctx)
}

func (o *Orchestrator) flushLocked(ctx context.Context) (FlushResult, error) {
	if len(o.buffer) == 0 {
		return FlushResult{}, nil
	}
	snapshot := o.buffer
	o.buffer = nil
	o.lastFlushTimer = time.Now()

	start := time.Now()
	statsBackup := o.analyzer.Backup()
	result, err := o.runFlushPipeline(ctx, snapshot)
	if o.metrics != nil {
		o.metrics.FlushesTotal.Inc()
		o.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// runFlushPipeline already folded snapshot into the analyzer so
		// Classify had current stats to decide placement from. Routing then
		// failed, so undo that fold: the snapshot is re-enqueued (or
		// dead-lettered) below and must not count toward presence_count,
		// null_count, or total_records_seen until a flush actually succeeds,
		// per spec.md §7/§8.
		o.analyzer.Restore(statsBackup)
		o.flushAttempts++
		if o.metrics != nil {
			o.metrics.FlushFailures.Inc()
			o.metrics.RecordsFailed.Add(float64(len(snapshot)))
		}
		if o.deadLetter != nil && o.cfg.DeadLetterAfter > 0 && o.flushAttempts >= o.cfg.DeadLetterAfter {
			if dlErr := o.deadLetter.Push(snapshot, err.Error()); dlErr != nil {
				if o.log != nil {
					o.log.Errorw("failed to quarantine batch to dead-letter queue", "error", dlErr)
				}
			} else {
				if o.metrics != nil {
					o.metrics.RecordsDeadLettered.Add(float64(len(snapshot)))
				}
				o.flushAttempts = 0
				// The WAL still holds these records; the dead-letter queue is
				// a quarantine record for operator replay, not a substitute
				// for WAL truncation, so the WAL is left alone here. The next
				// successful flush truncates the whole WAL, quarantined
				// records included; until then a restart replays them.
				return FlushResult{}, err
			}
		}
		// Re-enqueue at the head of the buffer so ingestion order is preserved.
		o.buffer = append(snapshot, o.buffer...)
		backoff.Sleep(int64(o.flushAttempts), 100*time.Millisecond, 10*time.Second)
		return FlushResult{}, err
	}
	o.flushAttempts = 0
	return result, nil
}

func (o *Orchestrator) runFlushPipeline(ctx context.Context, snapshot []record.Record) (FlushResult, error) {
	o.analyzer.Update(snapshot)
	fieldSnapshot := o.analyzer.Snapshot()
	totalSeen := o.analyzer.TotalRecordsSeen()

	decisions := o.classifier.Classify(fieldSnapshot, totalSeen)

	sqlCount, docCount, err := o.router.Route(ctx, snapshot, decisions)
	if err != nil {
		return FlushResult{}, pipelineerr.NewTransientBackendError("router", err)
	}
	if o.metrics != nil {
		o.metrics.SQLRowsWritten.Add(float64(sqlCount))
		o.metrics.DocRowsWritten.Add(float64(docCount))
		o.metrics.RecordsFlushed.Add(float64(len(snapshot)))
	}

	o.decisions = decisions
	o.totalRecordsProcessed += int64(len(snapshot))
	o.lastFlushTime = time.Now()

	if err := o.persistMetadata(fieldSnapshot, decisions); err != nil {
		return FlushResult{}, fmt.Errorf("persist metadata: %w", err)
	}
	if err := o.wal.Truncate(); err != nil {
		return FlushResult{}, fmt.Errorf("truncate WAL: %w", err)
	}
	if o.metrics != nil {
		o.metrics.BufferOccupancy.Set(float64(len(o.buffer)))
		o.metrics.WALSizeBytes.Set(0)
	}

	return FlushResult{
		RecordsProcessed: len(snapshot),
		DecisionsSQL:     countBackend(decisions, classify.SQL) + countBackend(decisions, classify.BOTH),
		DecisionsDoc:     countBackend(decisions, classify.DOC) + countBackend(decisions, classify.BOTH),
	}, nil
}

func (o *Orchestrator) persistMetadata(fields map[string]*stats.FieldStats, decisions map[string]classify.PlacementDecision) error {
	if err := o.meta.SaveDecisions(decisions); err != nil {
		return err
	}
	if err := o.meta.SaveFieldStats(fields); err != nil {
		return err
	}
	return o.meta.SaveState(metadata.State{
		TotalRecordsProcessed: o.totalRecordsProcessed,
		LastFlushTime:         o.lastFlushTime,
	})
}

func countBackend(decisions map[string]classify.PlacementDecision, b classify.Backend) int {
	n := 0
	for _, d := range decisions {
		if d.Backend == b {
			n++
		}
	}
	return n
}

// GetDecisions returns a snapshot of the current per-field placement
// decisions.
func (o *Orchestrator) GetDecisions() map[string]classify.PlacementDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]classify.PlacementDecision, len(o.decisions))
	for k, v := range o.decisions {
		out[k] = v
	}
	return out
}

// GetFieldStats returns a snapshot of the current cumulative field statistics.
func (o *Orchestrator) GetFieldStats() map[string]*stats.FieldStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.analyzer.Snapshot()
}

// GetStatus returns the orchestrator's current buffer occupancy and summary
// counters.
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		BufferSize:            len(o.buffer),
		TotalRecordsProcessed: o.totalRecordsProcessed,
		LastFlushTime:         o.lastFlushTime,
	}
}

// Close waits for any in-flight flush, drains the buffer with a final
// flush, and stops the periodic-flush goroutine. It does not close backend
// connections — those are owned by whoever constructed the Router's
// clients, per internal/relational and internal/document's ownership rules.
func (o *Orchestrator) Close(ctx context.Context) error {
	var err error
	o.closeOnce.Do(func() {
		close(o.closed)
		o.wg.Wait()
		o.mu.Lock()
		_, err = o.flushLocked(ctx)
		o.mu.Unlock()
	})
	return err
}
