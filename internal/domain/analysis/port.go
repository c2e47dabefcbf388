package analysis

import (
	"context"
	"time"
)

// Identity is the authenticated caller behind a session token.
type Identity struct {
	UserID string
	Method string
}

// AuthProvider resolves an opaque session token. It never issues tokens.
type AuthProvider interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// ImageArchive keeps a copy of submitted images and returns where it lives.
type ImageArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// Completed is published after a record has been stored.
type Completed struct {
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id"`
	ImageType string    `json:"image_type"`
	Shape     Shape     `json:"shape"`
	CreatedAt time.Time `json:"created_at"`
}

type EventPublisher interface {
	PublishCompleted(ctx context.Context, ev Completed) error
}
