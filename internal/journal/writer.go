package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/mt5-session/internal/events"
)

// ErrQueueFull is returned by Record when the queue has no room.
var ErrQueueFull = errors.New("journal queue full")

// BatchSender sends a batch of statements. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

// row is one session_events record.
type row struct {
	ID         uuid.UUID
	SessionID  string
	Event      events.Name
	OccurredAt time.Time
	Code       *int
	Message    string
	Payload    []byte
}

// Writer batches session events into the session_events table.
type Writer struct {
	cfg       Config
	logger    *slog.Logger
	db        BatchSender
	sessionID string
	now       func() time.Time

	input *Buffer[row]

	subsMu sync.Mutex
	subs   map[events.Name]events.SubscriptionID

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a Writer for the given session.
func NewWriter(cfg Config, db BatchSender, sessionID string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}

	return &Writer{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		sessionID: sessionID,
		now:       time.Now,
		input:     NewBuffer[row](initial, cfg.BufferSize),
		subs:      make(map[events.Name]events.SubscriptionID),
		batch:     make([]row, 0, cfg.BatchSize),
	}
}

// Attach subscribes the writer to every built-in event channel of d.
func (w *Writer) Attach(d *events.Dispatcher) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	for _, name := range events.Names {
		if _, ok := w.subs[name]; ok {
			continue
		}
		w.subs[name] = d.Subscribe(name, w.Record)
	}
}

// Detach removes the subscriptions made by Attach.
func (w *Writer) Detach(d *events.Dispatcher) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	for name, id := range w.subs {
		d.Unsubscribe(name, id)
		delete(w.subs, name)
	}
}

// Record enqueues an event. It never blocks.
func (w *Writer) Record(ev events.Event) error {
	r, err := w.transform(ev)
	if err != nil {
		return err
	}
	if !w.input.Push(r) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return ErrQueueFull
	}
	return nil
}

// Start begins consuming queued events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops the loops and flushes whatever is still queued.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	// Final flush
	w.enqueue(w.input.Drain(0))
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves queued rows into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.input.Ready():
			if w.enqueue(w.input.Drain(0)) {
				w.flush(w.ctx)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// enqueue appends rows to the batch and reports whether it is due a flush.
func (w *Writer) enqueue(rows []row) bool {
	if len(rows) == 0 {
		return false
	}
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, rows...)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts an event into a row.
func (w *Writer) transform(ev events.Event) (row, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return row{}, fmt.Errorf("marshal %s payload: %w", ev.EventName(), err)
	}

	r := row{
		ID:         uuid.New(),
		SessionID:  w.sessionID,
		Event:      ev.EventName(),
		OccurredAt: w.now().UTC(),
		Payload:    payload,
	}

	switch e := ev.(type) {
	case events.ConnectContext:
		if !e.At.IsZero() {
			r.OccurredAt = e.At.UTC()
		}
		r.Message = fmt.Sprintf("%d@%s", e.Login, e.Server)
	case events.DisconnectContext:
		r.Message = e.Reason
	case events.ErrorContext:
		code := e.Code
		r.Code = &code
		r.Message = e.Message
	case events.ReconnectContext:
		r.Message = fmt.Sprintf("attempt %d", e.Attempt)
	case events.AccountSwitchContext:
		r.Message = e.Account
	}
	return r, nil
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed session events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

const insertEvent = `
	INSERT INTO session_events (id, session_id, event, occurred_at, code, message, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id, occurred_at) DO NOTHING
`

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent, r.ID, r.SessionID, string(r.Event), r.OccurredAt, r.Code, r.Message, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
