package window

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lacrosse-relay/internal/types"
)

// Publisher is the sink a Flusher hands drained readings to.
type Publisher interface {
	Publish(ctx context.Context, r types.Reading) error
}

// FlushResult summarizes one flush.
type FlushResult struct {
	BatchID   string
	Published int
	Failed    int
}

// Flusher drains a Window every interval and publishes what it took.
type Flusher struct {
	window   *Window
	sink     Publisher
	interval time.Duration
	logger   *slog.Logger
}

func NewFlusher(w *Window, sink Publisher, interval time.Duration, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		window:   w,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

// Run flushes on every tick until ctx is done. Publish failures never stop it.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("flush timer started", "interval", f.interval)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("flush timer stopped", "pending", f.window.Len())
			return ctx.Err()
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush drains the window and publishes each reading in turn. A failed
// reading is logged and dropped; the rest of the batch is still published.
func (f *Flusher) Flush(ctx context.Context) FlushResult {
	res := FlushResult{BatchID: uuid.NewString()}

	batch := f.window.Drain()
	if len(batch) == 0 {
		f.logger.Debug("nothing to flush", "batch_id", res.BatchID)
		return res
	}

	logger := f.logger.With("batch_id", res.BatchID)
	logger.Info("flushing readings", "count", len(batch))

	for _, r := range batch {
		if err := f.sink.Publish(ctx, r); err != nil {
			res.Failed++
			logger.Error("publish failed, reading dropped",
				"location", r.Location,
				"sensor_id", r.SensorID.String(),
				"error", err,
			)
			continue
		}
		res.Published++
	}

	logger.Info("flush complete", "published", res.Published, "failed", res.Failed)
	return res
}
