package publish

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"lacrosse-relay/internal/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

// SQLitePublisher stores readings in the local readings table. The schema is
// created by internal/db/migrate.
type SQLitePublisher struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLitePublisher takes ownership of db; Close closes it.
func NewSQLitePublisher(db *sql.DB, logger *slog.Logger) *SQLitePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLitePublisher{db: db, logger: logger}
}

func (p *SQLitePublisher) Publish(ctx context.Context, r types.Reading) error {
	payload, err := Encode(r)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, insertReadingSQL,
		r.FormattedDate(),
		r.Location,
		r.SensorID.String(),
		r.SensorModel,
		nullableBool(r.BatteryOK),
		nullableBool(r.BatteryNew),
		nullableFloat(r.Temperature),
		nullableFloat(r.Humidity),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	p.logger.Info("published reading", "sink", "sqlite", "location", r.Location)
	return nil
}

func (p *SQLitePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func nullableBool(t types.TriState) sql.NullBool {
	v, known := t.Bool()
	return sql.NullBool{Bool: v, Valid: known}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
