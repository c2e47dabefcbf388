package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/history"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, user_id, image_type, COALESCE(image_url, ''), result, created_at`

// Insert writes the row and returns it as stored, including the generated id and created_at.
func (r *HistoryRepository) Insert(ctx context.Context, rec domain.NewRecord) (*domain.Record, error) {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	q := `
INSERT INTO users_history (user_id, image_type, image_url, result)
VALUES ($1, $2, NULLIF($3, ''), $4::jsonb)
RETURNING ` + historyColumns + `;`
	row := r.db.QueryRowContext(ctx, q, rec.UserID, rec.ImageType, rec.ImageURL, string(result))
	return scanRecord(row)
}

// ListByUser returns a page of records ordered by created_at desc
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	q := `
SELECT ` + historyColumns + `
FROM users_history
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
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
	q := `
SELECT ` + historyColumns + `
FROM users_history
WHERE user_id=$1 AND id::text=$2;`
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
	var raw []byte
	var created time.Time
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.ImageType, &rec.ImageURL, &raw, &created); err != nil {
		return nil, err
	}
	result, err := analysis.DecodeStoredResult(raw, created)
	if err != nil {
		return nil, fmt.Errorf("decode result of %s: %w", rec.ID, err)
	}
	rec.Result = result
	rec.CreatedAt = created
	return &rec, nil
}
