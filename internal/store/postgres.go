package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dealcast/dealcast/internal/db"
	"github.com/dealcast/dealcast/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_publication":    `SELECT product_id, channel_key, published_at FROM publications WHERE product_id = $1`,
	"record_publication": `INSERT INTO publications (product_id, channel_key, published_at) VALUES ($1, $2, $3) ON CONFLICT (product_id) DO UPDATE SET channel_key = EXCLUDED.channel_key, published_at = EXCLUDED.published_at`,
	"load_cycle_state":   `SELECT channel_index, mode_flip FROM cycle_state WHERE id = 1`,
	"save_cycle_state":   `INSERT INTO cycle_state (id, channel_index, mode_flip, updated_at) VALUES (1, $1, $2, $3) ON CONFLICT (id) DO UPDATE SET channel_index = EXCLUDED.channel_index, mode_flip = EXCLUDED.mode_flip, updated_at = EXCLUDED.updated_at`,
	"get_cycle":          `SELECT id, channel_key, source_mode, outcome, product_id, title, score, sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at FROM cycles WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS publications (
	product_id   TEXT PRIMARY KEY,
	channel_key  TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	channel_index INTEGER NOT NULL DEFAULT 0,
	mode_flip     BOOLEAN NOT NULL DEFAULT false,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cycles (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	channel_key     TEXT NOT NULL,
	source_mode     TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	product_id      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	sourced         INTEGER NOT NULL DEFAULT 0,
	valid           INTEGER NOT NULL DEFAULT 0,
	eligible        INTEGER NOT NULL DEFAULT 0,
	reset_performed BOOLEAN NOT NULL DEFAULT false,
	phases          JSONB,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_publications_published_at ON publications(published_at);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_cycles_channel_key ON cycles(channel_key);
CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetPublication(ctx context.Context, productID string) (*model.Publication, error) {
	var p model.Publication
	err := s.pool.QueryRow(ctx,
		`SELECT product_id, channel_key, published_at FROM publications WHERE product_id = $1`,
		productID,
	).Scan(&p.ProductID, &p.ChannelKey, &p.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get publication")
	}
	return &p, nil
}

func (s *PostgresStore) RecordPublication(ctx context.Context, pub model.Publication) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO publications (product_id, channel_key, published_at) VALUES ($1, $2, $3)
		 ON CONFLICT (product_id) DO UPDATE SET channel_key = EXCLUDED.channel_key, published_at = EXCLUDED.published_at`,
		pub.ProductID, pub.ChannelKey, pub.PublishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record publication %s", pub.ProductID)
}

func (s *PostgresStore) ImportPublications(ctx context.Context, pubs []model.Publication) (int64, error) {
	rows := make([][]any, 0, len(pubs))
	for _, p := range pubs {
		rows = append(rows, []any{p.ProductID, p.ChannelKey, p.PublishedAt.UTC()})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "publications",
		Columns:      []string{"product_id", "channel_key", "published_at"},
		ConflictKeys: []string{"product_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import publications")
}

func (s *PostgresStore) ClearPublications(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM publications`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear publications")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountPublications(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM publications`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count publications")
}

func (s *PostgresStore) CountPublicationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM publications WHERE published_at >= $1`, since,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count publications since")
}

func (s *PostgresStore) ListPublications(ctx context.Context, limit int) ([]model.Publication, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, channel_key, published_at FROM publications ORDER BY published_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list publications")
	}
	defer rows.Close()

	var pubs []model.Publication
	for rows.Next() {
		var p model.Publication
		if err := rows.Scan(&p.ProductID, &p.ChannelKey, &p.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan publication")
		}
		pubs = append(pubs, p)
	}
	return pubs, eris.Wrap(rows.Err(), "postgres: list publications iterate")
}

func (s *PostgresStore) LoadCycleState(ctx context.Context) (*model.CycleState, error) {
	var st model.CycleState
	err := s.pool.QueryRow(ctx,
		`SELECT channel_index, mode_flip FROM cycle_state WHERE id = 1`,
	).Scan(&st.ChannelIndex, &st.ModeFlip)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: load cycle state")
	}
	return &st, nil
}

func (s *PostgresStore) SaveCycleState(ctx context.Context, state model.CycleState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cycle_state (id, channel_index, mode_flip, updated_at) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET channel_index = EXCLUDED.channel_index, mode_flip = EXCLUDED.mode_flip, updated_at = EXCLUDED.updated_at`,
		state.ChannelIndex, state.ModeFlip, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save cycle state")
}

func (s *PostgresStore) RecordCycle(ctx context.Context, rec *model.CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	phasesJSON, err := json.Marshal(rec.Phases)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phases")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cycles (id, channel_key, source_mode, outcome, product_id, title, score,
			sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.ChannelKey, string(rec.SourceMode), string(rec.Outcome),
		rec.ProductID, rec.Title, rec.Score,
		rec.Sourced, rec.Valid, rec.Eligible, rec.ResetPerformed,
		phasesJSON, rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert cycle %s", rec.ID)
}

func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*model.CycleRecord, error) {
	rec, err := scanCycleRow(s.pool.QueryRow(ctx,
		`SELECT id, channel_key, source_mode, outcome, product_id, title, score,
			sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at
		 FROM cycles WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleRecord, error) {
	query := `SELECT id, channel_key, source_mode, outcome, product_id, title, score,
		sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at
	 FROM cycles WHERE true`
	var args []any
	argIdx := 1

	if filter.ChannelKey != "" {
		query += fmt.Sprintf(` AND channel_key = $%d`, argIdx)
		args = append(args, filter.ChannelKey)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var recs []model.CycleRecord
	for rows.Next() {
		rec, err := scanCycleRow(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list cycles iterate")
}

func scanCycleRow(row scannable) (*model.CycleRecord, error) {
	var rec model.CycleRecord
	var mode, outcome string
	var phasesJSON []byte

	err := row.Scan(&rec.ID, &rec.ChannelKey, &mode, &outcome,
		&rec.ProductID, &rec.Title, &rec.Score,
		&rec.Sourced, &rec.Valid, &rec.Eligible, &rec.ResetPerformed,
		&phasesJSON, &rec.Error, &rec.StartedAt, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan cycle")
	}

	rec.SourceMode = model.SourceMode(mode)
	rec.Outcome = model.Outcome(outcome)
	if len(phasesJSON) > 0 {
		if err := json.Unmarshal(phasesJSON, &rec.Phases); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal phases")
		}
	}
	return &rec, nil
}
