package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/quality"
)

// DefaultTable holds one row per flush.
const DefaultTable = "sleep_readings"

// Postgres inserts each payload as one row. Works against plain PostgreSQL
// or a TimescaleDB hypertable on ts.
type Postgres struct {
	db    *sql.DB
	table string
	ident string // table, quoted for SQL
}

// OpenPostgres opens a lib/pq connection pool for dsn.
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db, table), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB, table string) *Postgres {
	if table == "" {
		table = DefaultTable
	}
	return &Postgres{db: db, table: table, ident: pq.QuoteIdentifier(table)}
}

func (p *Postgres) Name() string { return "postgres" }

// EnsureSchema creates the table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+p.ident+` (
	id TEXT PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	heart_rate DOUBLE PRECISION,
	motion DOUBLE PRECISION,
	humid DOUBLE PRECISION,
	temp DOUBLE PRECISION,
	sound DOUBLE PRECISION,
	brightness DOUBLE PRECISION,
	light BOOLEAN,
	posture TEXT,
	quality DOUBLE PRECISION,
	samples INTEGER
)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// Publish implements Sink. Re-publishing the same payload ID is a no-op.
func (p *Postgres) Publish(ctx context.Context, pl logic.Payload) error {
	s := pl.Sensor
	_, err := p.db.ExecContext(ctx, "INSERT INTO "+p.ident+
		" (id, ts, heart_rate, motion, humid, temp, sound, brightness, light, posture, quality, samples)"+
		" VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) ON CONFLICT (id) DO NOTHING",
		pl.ID, pl.Timestamp, s.HeartRate, s.Motion, s.Humid, s.Temp, s.Sound, s.Brightness,
		s.Light, pl.Posture.Posture, quality.Score(s), pl.Samples)
	if err != nil {
		return fmt.Errorf("insert %s: %w", p.table, err)
	}
	return nil
}

// Close implements Sink.
func (p *Postgres) Close() error {
	return p.db.Close()
}
