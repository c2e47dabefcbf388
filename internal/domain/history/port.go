package history

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no row matches.
var ErrNotFound = errors.New("history record not found")

// Repository port for persisting and querying history records
type Repository interface {
	// Insert writes a new row and returns it as stored. Not idempotent.
	Insert(ctx context.Context, rec NewRecord) (*Record, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*Record, error)
	Get(ctx context.Context, userID string, id RecordID) (*Record, error)
}
