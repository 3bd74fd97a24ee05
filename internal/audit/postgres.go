package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresLogger struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return db, nil
}

func NewPostgresLogger(db *sql.DB) (*PostgresLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	l := &PostgresLogger{db: db, nowFunc: time.Now}
	if err := l.ensureSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLogger) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	at TIMESTAMPTZ NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
)`
	if _, err := l.db.Exec(q); err != nil {
		return fmt.Errorf("ensure audit_events schema: %w", err)
	}
	return nil
}

func (l *PostgresLogger) Log(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = l.nowFunc()
	}
	const q = `
INSERT INTO audit_events (at, actor, action, target, outcome, detail)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := l.db.ExecContext(ctx, q, e.At.UTC(), e.Actor, e.Action, e.Target, e.Outcome, e.Detail); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events first.
func (l *PostgresLogger) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT at, actor, action, target, outcome, detail
FROM audit_events
ORDER BY at DESC, id DESC
LIMIT $1`
	rows, err := l.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.At, &e.Actor, &e.Action, &e.Target, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
