// Package audit keeps an optional trail of served predictions in Postgres.
// Only outcomes are stored, never the patient's input values.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `CREATE TABLE IF NOT EXISTS prediction_audit (
	id            UUID PRIMARY KEY,
	model_version TEXT NOT NULL,
	probability   DOUBLE PRECISION NOT NULL,
	verdict       TEXT NOT NULL,
	explained     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
)`

const insertEntry = `INSERT INTO prediction_audit
	(id, model_version, probability, verdict, explained, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

type Entry struct {
	ID           uuid.UUID
	ModelVersion string
	Probability  float64
	Verdict      string
	Explained    bool
	CreatedAt    time.Time
}

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

type Store struct {
	db  DB
	now func() time.Time
}

func New(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Connect opens a pool, checks it answers and makes sure the table exists.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	store := New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record stores one entry, filling in a missing ID or timestamp.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.Exec(ctx, insertEntry,
		e.ID, e.ModelVersion, e.Probability, e.Verdict, e.Explained, e.CreatedAt,
	); err != nil {
		return e, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
