package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/medimage-insight/internal/application"
	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/history"
)

type HistoryRepository struct {
	db    *sql.DB
	clock application.Clock
}

func NewHistoryRepository(db *sql.DB, clock application.Clock) *HistoryRepository {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &HistoryRepository{db: db, clock: clock}
}

const Schema = `
CREATE TABLE IF NOT EXISTS users_history (
  id         CHAR(36)     NOT NULL PRIMARY KEY,
  user_id    VARCHAR(128) NOT NULL,
  image_type VARCHAR(64)  NOT NULL,
  image_url  TEXT         NULL,
  result     JSON         NOT NULL,
  created_at DATETIME(3)  NOT NULL,
  KEY users_history_user_created_idx (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

const historyColumns = `id, user_id, image_type, COALESCE(image_url, ''), result, created_at`

// Insert has no RETURNING in MySQL, so the row is written and read back in one transaction.
func (r *HistoryRepository) Insert(ctx context.Context, rec domain.NewRecord) (*domain.Record, error) {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	id := uuid.NewString()
	createdAt := r.clock.Now().UTC().Truncate(time.Millisecond)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const ins = `
INSERT INTO users_history (id, user_id, image_type, image_url, result, created_at)
VALUES (?, ?, ?, ?, CAST(? AS JSON), ?);`
	if _, err := tx.ExecContext(ctx, ins, id, rec.UserID, rec.ImageType, nullIfBlank(rec.ImageURL), string(result), createdAt); err != nil {
		return nil, err
	}

	sel := `SELECT ` + historyColumns + ` FROM users_history WHERE id=?;`
	out, err := scanRecord(tx.QueryRowContext(ctx, sel, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
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
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`
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
	q := `SELECT ` + historyColumns + ` FROM users_history WHERE user_id=? AND id=?;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, userID, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
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
