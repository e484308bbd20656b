// Package ingest reads raw sensor lines and routes each normalized reading
// either straight to the publish sink or into the collection window.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"lacrosse-relay/internal/reading"
	"lacrosse-relay/internal/window"
)

const maxLineSize = 1 << 20

// Outcome is what happened to one input line.
type Outcome int

const (
	Rejected Outcome = iota
	UnknownLocation
	Published
	PublishFailed
	Queued
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case UnknownLocation:
		return "unknown_location"
	case Published:
		return "published"
	case PublishFailed:
		return "publish_failed"
	case Queued:
		return "queued"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Stats counts line outcomes.
type Stats struct {
	Lines           int
	Rejected        int
	UnknownLocation int
	Published       int
	PublishFailed   int
	Queued          int
}

// Loop is the foreground reader. With a nil window every reading is published
// synchronously; otherwise readings are put into the window for the Flusher.
type Loop struct {
	dir    reading.Resolver
	sink   window.Publisher
	window *window.Window
	logger *slog.Logger
	stats  Stats
}

func New(dir reading.Resolver, sink window.Publisher, w *window.Window, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		dir:    dir,
		sink:   sink,
		window: w,
		logger: logger,
	}
}

// Stats returns the counters so far. Not safe to call while Run is active.
func (l *Loop) Stats() Stats { return l.stats }

// Run handles lines from r until EOF. EOF is logged as an error and ends the
// loop without an error; read failures are returned. Lines longer than
// maxLineSize are discarded and counted as rejected.
func (l *Loop) Run(ctx context.Context, r io.Reader) error {
	br := bufio.NewReaderSize(r, 64<<10)

	for {
		line, oversized, readErr := readLine(br)
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case oversized:
			l.stats.Lines++
			l.stats.Rejected++
			l.logger.Error("invalid reading, line dropped",
				"kind", "line_too_long",
				"limit_bytes", maxLineSize,
			)
		case readErr == nil || len(line) > 0:
			l.HandleLine(ctx, line)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("read input: %w", readErr)
		}
	}

	l.logger.Error("no line received, input closed", "lines", l.stats.Lines)
	return nil
}

// readLine returns the next line without its terminator. Once a line exceeds
// maxLineSize the rest of it is consumed and discarded and oversized is set.
func readLine(br *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		var frag []byte
		frag, err = br.ReadSlice('\n')
		if !oversized {
			line = append(line, frag...)
			if len(bytes.TrimRight(line, "\r\n")) > maxLineSize {
				oversized = true
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), oversized, err
	}
}

// HandleLine processes one raw line. Nothing here is fatal: every failure is
// logged and the line is dropped.
func (l *Loop) HandleLine(ctx context.Context, line []byte) Outcome {
	if len(bytes.TrimSpace(line)) == 0 {
		l.logger.Debug("skipping blank line")
		return Skipped
	}
	l.stats.Lines++

	r, err := reading.Normalize(line, l.dir)
	if err != nil {
		l.stats.Rejected++
		attrs := []any{"error", err, "line", string(line)}
		var ve *reading.ValidationError
		if errors.As(err, &ve) {
			attrs = append(attrs, "kind", ve.Kind.String())
			if ve.Field != "" {
				attrs = append(attrs, "field", ve.Field)
			}
		}
		l.logger.Error("invalid reading, line dropped", attrs...)
		return Rejected
	}

	if !r.HasLocation() {
		l.stats.UnknownLocation++
		l.logger.Warn("unknown location for device",
			"sensor_id", r.SensorID.String(),
			"sensor_model", r.SensorModel,
			"line", string(line),
		)
		return UnknownLocation
	}

	if l.window != nil {
		l.window.Put(r)
		l.stats.Queued++
		l.logger.Info("adding reading to collection", "location", r.Location, "sensor_id", r.SensorID.String())
		return Queued
	}

	if err := l.sink.Publish(ctx, r); err != nil {
		l.stats.PublishFailed++
		l.logger.Error("publish failed, reading dropped",
			"location", r.Location,
			"sensor_id", r.SensorID.String(),
			"error", err,
		)
		return PublishFailed
	}
	l.stats.Published++
	return Published
}

// Logged at shutdown.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("lines", s.Lines),
		slog.Int("rejected", s.Rejected),
		slog.Int("unknown_location", s.UnknownLocation),
		slog.Int("published", s.Published),
		slog.Int("publish_failed", s.PublishFailed),
		slog.Int("queued", s.Queued),
	)
}
