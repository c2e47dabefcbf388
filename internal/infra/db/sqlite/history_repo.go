package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/medimage-insight/internal/application"
	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/history"
)

//go:embed schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

// created_at is stored as text so ordering and round trips do not depend on driver time handling.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type HistoryRepository struct {
	db    *sql.DB
	clock application.Clock
}

// Open opens (or creates) the database file and brings its schema up to date.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, clock application.Clock) (*HistoryRepository, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}
	// a second connection to :memory: would see an empty database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := schema.Apply(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewHistoryRepository(db, clock), db, nil
}

func NewHistoryRepository(db *sql.DB, clock application.Clock) *HistoryRepository {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &HistoryRepository{db: db, clock: clock}
}

const historyColumns = `id, user_id, image_type, COALESCE(image_url, ''), result, created_at`

func (r *HistoryRepository) Insert(ctx context.Context, rec domain.NewRecord) (*domain.Record, error) {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	q := `
INSERT INTO users_history (id, user_id, image_type, image_url, result, created_at)
VALUES (?, ?, ?, NULLIF(?, ''), json(?), ?)
RETURNING ` + historyColumns + `;`
	createdAt := r.clock.Now().UTC().Format(timeLayout)
	return scanRecord(r.db.QueryRowContext(ctx, q, uuid.NewString(), rec.UserID, rec.ImageType, rec.ImageURL, string(result), createdAt))
}

func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	q := `
SELECT ` + historyColumns + `
FROM users_history
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) Get(ctx context.Context, userID string, id domain.RecordID) (*domain.Record, error) {
	q := `SELECT ` + historyColumns + ` FROM users_history WHERE user_id = ? AND id = ?;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, userID, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.Record, error) {
	var rec domain.Record
	var raw, created string
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.ImageType, &rec.ImageURL, &raw, &created); err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", rec.ID, err)
	}
	result, err := analysis.DecodeStoredResult([]byte(raw), createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", rec.ID, err)
	}
	rec.Result = result
	rec.CreatedAt = createdAt
	return &rec, nil
}
