package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dealcast/dealcast/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS publications (
	product_id   TEXT PRIMARY KEY,
	channel_key  TEXT NOT NULL,
	published_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	channel_index INTEGER NOT NULL DEFAULT 0,
	mode_flip     INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	id              TEXT PRIMARY KEY,
	channel_key     TEXT NOT NULL,
	source_mode     TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	product_id      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	score           REAL NOT NULL DEFAULT 0,
	sourced         INTEGER NOT NULL DEFAULT 0,
	valid           INTEGER NOT NULL DEFAULT 0,
	eligible        INTEGER NOT NULL DEFAULT 0,
	reset_performed INTEGER NOT NULL DEFAULT 0,
	phases          TEXT,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_publications_published_at ON publications(published_at);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_cycles_channel_key ON cycles(channel_key);
CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPublication(ctx context.Context, productID string) (*model.Publication, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT product_id, channel_key, published_at FROM publications WHERE product_id = ?`,
		productID,
	)

	var p model.Publication
	err := row.Scan(&p.ProductID, &p.ChannelKey, &p.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get publication")
	}
	return &p, nil
}

func (s *SQLiteStore) RecordPublication(ctx context.Context, pub model.Publication) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publications (product_id, channel_key, published_at) VALUES (?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET channel_key = excluded.channel_key, published_at = excluded.published_at`,
		pub.ProductID, pub.ChannelKey, pub.PublishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record publication %s", pub.ProductID)
}

func (s *SQLiteStore) ImportPublications(ctx context.Context, pubs []model.Publication) (int64, error) {
	if len(pubs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO publications (product_id, channel_key, published_at) VALUES (?, ?, ?)
		 ON CONFLICT (product_id) DO UPDATE SET channel_key = excluded.channel_key, published_at = excluded.published_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close()

	var n int64
	for _, p := range pubs {
		if _, err := stmt.ExecContext(ctx, p.ProductID, p.ChannelKey, p.PublishedAt.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import publication %s", p.ProductID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) ClearPublications(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM publications`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear publications")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) CountPublications(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publications`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count publications")
}

func (s *SQLiteStore) CountPublicationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM publications WHERE published_at >= ?`, since,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count publications since")
}

func (s *SQLiteStore) ListPublications(ctx context.Context, limit int) ([]model.Publication, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, channel_key, published_at FROM publications ORDER BY published_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list publications")
	}
	defer rows.Close()

	var pubs []model.Publication
	for rows.Next() {
		var p model.Publication
		if err := rows.Scan(&p.ProductID, &p.ChannelKey, &p.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan publication")
		}
		pubs = append(pubs, p)
	}
	return pubs, eris.Wrap(rows.Err(), "sqlite: list publications iterate")
}

func (s *SQLiteStore) LoadCycleState(ctx context.Context) (*model.CycleState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT channel_index, mode_flip FROM cycle_state WHERE id = 1`,
	)

	var st model.CycleState
	err := row.Scan(&st.ChannelIndex, &st.ModeFlip)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load cycle state")
	}
	return &st, nil
}

func (s *SQLiteStore) SaveCycleState(ctx context.Context, state model.CycleState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycle_state (id, channel_index, mode_flip, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET channel_index = excluded.channel_index, mode_flip = excluded.mode_flip, updated_at = excluded.updated_at`,
		state.ChannelIndex, state.ModeFlip, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save cycle state")
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, rec *model.CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	phasesJSON, err := json.Marshal(rec.Phases)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phases")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, channel_key, source_mode, outcome, product_id, title, score,
			sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChannelKey, string(rec.SourceMode), string(rec.Outcome),
		rec.ProductID, rec.Title, rec.Score,
		rec.Sourced, rec.Valid, rec.Eligible, rec.ResetPerformed,
		string(phasesJSON), rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert cycle %s", rec.ID)
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*model.CycleRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_key, source_mode, outcome, product_id, title, score,
			sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at
		 FROM cycles WHERE id = ?`,
		id,
	)
	rec, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleRecord, error) {
	query := `SELECT id, channel_key, source_mode, outcome, product_id, title, score,
		sourced, valid, eligible, reset_performed, phases, error, started_at, finished_at
	 FROM cycles WHERE 1=1`
	var args []any

	if filter.ChannelKey != "" {
		query += ` AND channel_key = ?`
		args = append(args, filter.ChannelKey)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close()

	var recs []model.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list cycles iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCycle(row scannable) (*model.CycleRecord, error) {
	var rec model.CycleRecord
	var mode, outcome string
	var phasesJSON sql.NullString

	err := row.Scan(&rec.ID, &rec.ChannelKey, &mode, &outcome,
		&rec.ProductID, &rec.Title, &rec.Score,
		&rec.Sourced, &rec.Valid, &rec.Eligible, &rec.ResetPerformed,
		&phasesJSON, &rec.Error, &rec.StartedAt, &rec.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan cycle")
	}

	rec.SourceMode = model.SourceMode(mode)
	rec.Outcome = model.Outcome(outcome)
	if phasesJSON.Valid && phasesJSON.String != "" {
		if err := json.Unmarshal([]byte(phasesJSON.String), &rec.Phases); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal phases")
		}
	}
	return &rec, nil
}
