package history

import (
	"time"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
)

// RecordID identifier type
type RecordID string

// Record is one stored analysis, owned by a user. Rows are immutable once written.
type Record struct {
	ID        RecordID        `json:"id"`
	UserID    string          `json:"user_id"`
	ImageType string          `json:"image_type"`
	ImageURL  string          `json:"image_url,omitempty"`
	Result    analysis.Result `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRecord holds the caller-supplied columns of an insert; ID and CreatedAt
// are assigned by the store.
type NewRecord struct {
	UserID    string
	ImageType string
	ImageURL  string
	Result    analysis.Result
}

// Page is a slice of a user's history, newest first.
type Page struct {
	Items    []*Record `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
