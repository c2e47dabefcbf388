package analysis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/domain/history"
)

type mockAuth struct {
	AuthenticateFunc func(ctx context.Context, token string) (domain.Identity, error)
	calls            atomic.Int32
}

func (m *mockAuth) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	m.calls.Add(1)
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, token)
	}
	return domain.Identity{UserID: "user-1", Method: "jwt"}, nil
}

type mockModel struct {
	CompleteFunc func(ctx context.Context, req ai.Request) (string, error)
	calls        atomic.Int32
	last         ai.Request
}

func (m *mockModel) Complete(ctx context.Context, req ai.Request) (string, error) {
	m.calls.Add(1)
	m.last = req
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return `{"description":"d","diagnosis":"x","extra_comments":"c"}`, nil
}

type mockStore struct {
	InsertFunc func(ctx context.Context, rec history.NewRecord) (*history.Record, error)
	ListFunc   func(ctx context.Context, userID string, page, pageSize int) ([]*history.Record, error)
	GetFunc    func(ctx context.Context, userID string, id history.RecordID) (*history.Record, error)
	inserts    atomic.Int32
	lastInsert history.NewRecord
}

func (m *mockStore) Insert(ctx context.Context, rec history.NewRecord) (*history.Record, error) {
	m.inserts.Add(1)
	m.lastInsert = rec
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, rec)
	}
	return &history.Record{
		ID:        "rec-1",
		UserID:    rec.UserID,
		ImageType: rec.ImageType,
		ImageURL:  rec.ImageURL,
		Result:    rec.Result,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockStore) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*history.Record, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, page, pageSize)
	}
	return nil, nil
}

func (m *mockStore) Get(ctx context.Context, userID string, id history.RecordID) (*history.Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, id)
	}
	return nil, history.ErrNotFound
}

type mockArchive struct {
	PutFunc func(ctx context.Context, key string, data []byte, contentType string) (string, error)
	puts    atomic.Int32
	removed []string
	lastKey string
	lastCT  string
}

func (m *mockArchive) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.puts.Add(1)
	m.lastKey, m.lastCT = key, contentType
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, data, contentType)
	}
	return "http://minio.local/images/" + key, nil
}

func (m *mockArchive) Remove(_ context.Context, key string) error {
	m.removed = append(m.removed, key)
	return nil
}

type mockEvents struct {
	PublishFunc func(ctx context.Context, ev domain.Completed) error
	events      []domain.Completed
}

func (m *mockEvents) PublishCompleted(ctx context.Context, ev domain.Completed) error {
	m.events = append(m.events, ev)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
