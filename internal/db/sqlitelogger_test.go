package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := make(map[string]slog.Value)
	m["msg"] = slog.StringValue(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = nil
}

func openLogged(t *testing.T, handler *captureHandler) *sql.DB {
	t.Helper()
	connector, err := NewLoggingConnector(":memory:", slog.New(handler))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewLoggingConnector_nilLoggerUsesDefault(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	lc, ok := conn.(*loggingConnector)
	if !ok {
		t.Fatalf("connector type = %T", conn)
	}
	if lc.logger == nil {
		t.Error("logger is nil, want slog.Default()")
	}
}

func TestLoggingConnector_ExecAndQueryLogged(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected at least one sql log record for Exec")
	}
	got := recs[len(recs)-1]
	if got["op"].String() != "exec" {
		t.Errorf("op: got %q, want exec", got["op"].String())
	}
	if got["sql"].String() != `CREATE TABLE t (id INTEGER PRIMARY KEY)` {
		t.Errorf("sql: got %q", got["sql"].String())
	}

	handler.reset()
	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	recs = handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for QueryRow")
	}
	if op := recs[len(recs)-1]["op"].String(); op != "query" {
		t.Errorf("op: got %q, want query", op)
	}
}

func TestLoggingConnector_ArgsFormatted(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	if _, err := db.Exec(`CREATE TABLE r (location TEXT, temperature REAL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	handler.reset()

	if _, err := db.Exec(`INSERT INTO r (location, temperature) VALUES (?, ?)`, "Garage", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for insert")
	}
	args, ok := recs[len(recs)-1]["args"].Any().([]string)
	if !ok {
		t.Fatalf("args type = %T, want []string", recs[len(recs)-1]["args"].Any())
	}
	if len(args) != 2 || args[0] != "Garage" || args[1] != "NULL" {
		t.Errorf("args = %v, want [Garage NULL]", args)
	}
}

func TestLoggingConnector_MultiStatementExec(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	script := `
CREATE TABLE a (id INTEGER);
CREATE TABLE b (id INTEGER);
INSERT INTO b (id) VALUES (1);`
	if _, err := db.Exec(script); err != nil {
		t.Fatalf("exec script: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM b`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows in b = %d, want 1", n)
	}
}

func TestLoggingConnector_ErrorLogged(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	if _, err := db.Exec(`INSERT INTO missing (id) VALUES (1)`); err == nil {
		t.Fatal("expected error for missing table")
	}

	var sawError bool
	for _, rec := range handler.recordsFor(t, "sql") {
		if _, ok := rec["error"]; ok {
			sawError = true
		}
	}
	for _, rec := range handler.recordsFor(t, "sql prepare failed") {
		if _, ok := rec["error"]; ok {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected a log record carrying the error")
	}
}

func TestLoggingConnector_TransactionCommits(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	handler.reset()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO t (id) VALUES (?)`, 7); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var begins int
	for _, rec := range handler.recordsFor(t, "sql") {
		if rec["op"].String() == "begin" {
			begins++
		}
	}
	if begins != 1 {
		t.Errorf("begin records = %d, want 1", begins)
	}

	var id int
	if err := db.QueryRowContext(ctx, `SELECT id FROM t`).Scan(&id); err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

func TestLoggingDriver_OpenRefuses(t *testing.T) {
	if _, err := (loggingDriver{}).Open(":memory:"); err == nil {
		t.Fatal("expected loggingDriver.Open to fail")
	}
}
