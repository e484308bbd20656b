package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"lacrosse-relay/internal/config"
	"lacrosse-relay/internal/db"
	"lacrosse-relay/internal/db/migrate"
	"lacrosse-relay/internal/ingest"
	"lacrosse-relay/internal/location"
	"lacrosse-relay/internal/publish"
	"lacrosse-relay/internal/window"
)

// Run relays readings from in until it is exhausted or ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, in io.Reader) error {
	logger := slog.Default()

	entries, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		return err
	}
	dir := location.New(entries)
	if dir.Len() == 0 {
		logger.Warn("no locations configured", "file", cfg.LocationsFile)
	} else {
		logger.Info("parsed location mappings", "count", dir.Len(), "locations", dir.Entries())
	}

	sink, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing sink failed", "sink", cfg.PublishSink, "error", err)
		}
	}()

	var w *window.Window
	if cfg.Batched() {
		w = window.New()
		flusher := window.NewFlusher(w, sink, cfg.UpdateInterval, logger)
		// Not joined on exit; pending readings are abandoned with the process.
		go func() { _ = flusher.Run(ctx) }()
		logger.Info("batched mode", "interval", cfg.UpdateInterval)
	} else {
		logger.Info("immediate mode")
	}

	loop := ingest.New(dir, sink, w, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx, in) }()

	select {
	case <-ctx.Done():
		logger.Info("relay interrupted")
		return nil
	case err := <-errCh:
		logger.Info("relay stopped", "stats", loop.Stats())
		return err
	}
}

func newSink(ctx context.Context, cfg config.Config, logger *slog.Logger) (publish.Publisher, error) {
	logger.Info("initializing sink", "sink", cfg.PublishSink)

	switch cfg.PublishSink {
	case config.SinkHTTP, "":
		p, err := publish.NewHTTPPublisher(publish.HTTPOptions{
			BaseURL:     cfg.APIBaseURL,
			DeviceToken: cfg.DeviceToken,
			Timeout:     cfg.PublishTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing to ingress", "url", p.URL())
		return p, nil

	case config.SinkMQTT:
		p := publish.NewMQTTPublisher(publish.MQTTOptions{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		// Readings published before the broker is reachable fail and are dropped.
		go func() {
			if err := p.Connect(ctx); err != nil {
				logger.Error("mqtt connect failed", "error", err)
			}
		}()
		return p, nil

	case config.SinkSQLite:
		conn, err := db.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		applied, err := migrate.Run(ctx, conn, logger)
		if err != nil {
			_ = db.Close(conn)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database ready", "migrations_applied", applied)
		return publish.NewSQLitePublisher(conn, logger), nil

	default:
		return nil, fmt.Errorf("unknown publish sink %q", cfg.PublishSink)
	}
}
