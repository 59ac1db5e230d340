package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rgledhill/netwatch/internal/bus"
	"github.com/rgledhill/netwatch/internal/channels"
	"github.com/rgledhill/netwatch/internal/config"
)

// eventRow is one network_events record.
type eventRow struct {
	Instance   string
	Channel    string
	Kind       string
	EntityID   string
	Payload    []byte
	OccurredAt int64 // microseconds
}

// batchSender is the slice of pgxpool.Pool the writer needs. Tests fake it.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer consumes derived-state events from the bus and writes them to
// the network_events table.
type Writer struct {
	cfg      config.ArchiveConfig
	instance string
	logger   *slog.Logger

	// Input from the message bus
	bus   bus.MessageBus
	input bus.Subscription

	// Database
	db batchSender

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// WriterMetrics tracks archive writer activity.
type WriterMetrics struct {
	Inserts int64
	Flushes int64
	Dropped int64
	Errors  int64
}

// NewWriter creates an archive writer. The db pool may be nil in tests
// as long as nothing forces a flush.
func NewWriter(cfg config.ArchiveConfig, instance string, b bus.MessageBus, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultFlushInterval
	}
	w := &Writer{
		cfg:      cfg,
		instance: instance,
		bus:      b,
		logger:   logger.With("component", "archive"),
		batch:    make([]eventRow, 0, cfg.BatchSize),
	}
	if db != nil {
		w.db = db
	}
	return w
}

// Start subscribes to the bus and begins batching.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)
	w.input = w.bus.Subscribe(
		bus.TopicNodeStatus,
		bus.TopicDeviceMetric,
		bus.TopicDeviceStatus,
		bus.TopicAlert,
	)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the final batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	if w.input != nil {
		w.bus.Unsubscribe(w.input,
			bus.TopicNodeStatus,
			bus.TopicDeviceMetric,
			bus.TopicDeviceStatus,
			bus.TopicAlert,
		)
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// The run context is cancelled by now; the final flush must ride the
	// caller's context or the last batch is lost on every shutdown.
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case msg, ok := <-w.input:
			if !ok {
				return
			}
			w.handleEvent(msg)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms a bus payload and adds it to the batch.
func (w *Writer) handleEvent(msg any) {
	row, ok := w.transform(msg)
	if !ok {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a bus payload to an eventRow. Unrecognized payload
// types are dropped.
func (w *Writer) transform(msg any) (eventRow, bool) {
	switch ev := msg.(type) {
	case channels.NodeStatusEvent:
		return w.row(channels.NameTopology, "node_status", ev.NodeID, ev, ev.At), true
	case channels.DeviceMetricEvent:
		return w.row(channels.NameMetrics, "device_metrics", ev.DeviceID, ev, ev.At), true
	case channels.DeviceStatusEvent:
		return w.row(channels.NameMetrics, "device_status", ev.DeviceID, ev, ev.At), true
	case channels.AlertEvent:
		return w.row(channels.NameAlerts, "alert_"+string(ev.State), ev.Alert.ID, ev, ev.At), true
	default:
		return eventRow{}, false
	}
}

func (w *Writer) row(channel, kind, entityID string, payload any, at time.Time) eventRow {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs; this only fires on programmer error.
		w.logger.Error("marshal event payload", "kind", kind, "error", err)
	}
	if at.IsZero() {
		at = time.Now()
	}
	return eventRow{
		Instance:   w.instance,
		Channel:    channel,
		Kind:       kind,
		EntityID:   entityID,
		Payload:    data,
		OccurredAt: at.UnixMicro(),
	}
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
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO network_events (instance, channel, kind, entity_id, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.Instance, r.Channel, r.Kind, r.EntityID, r.Payload, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
