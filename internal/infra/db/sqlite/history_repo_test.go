package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/history"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestHistoryRepository(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	repo, db, err := Open(t.Context(), ":memory:", clock)
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("insert returns stored row", func(t *testing.T) {
		rec, err := repo.Insert(t.Context(), domain.NewRecord{
			UserID:    "alice",
			ImageType: "image/png",
			Result:    analysis.NewStructured(analysis.Findings{Description: "d", Diagnosis: "x", ExtraComments: "c"}, at),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "alice", rec.UserID)
		assert.Empty(t, rec.ImageURL)
		assert.Equal(t, "x", rec.Result.Findings.Diagnosis)
		assert.True(t, rec.Result.Timestamp.Equal(at))
		assert.True(t, rec.CreatedAt.Equal(at.Add(time.Second)))

		var typ string
		require.NoError(t, db.QueryRowContext(t.Context(), `SELECT json_type(result) FROM users_history WHERE id = ?`, string(rec.ID)).Scan(&typ))
		assert.Equal(t, "object", typ, "result must be stored as a JSON object, not a string")
	})

	t.Run("insert is not idempotent", func(t *testing.T) {
		rec := domain.NewRecord{UserID: "bob", ImageType: "image/jpeg", ImageURL: "http://minio/b/1.jpg", Result: analysis.NewFreeText("same", at)}
		a, err := repo.Insert(t.Context(), rec)
		require.NoError(t, err)
		b, err := repo.Insert(t.Context(), rec)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)

		list, err := repo.ListByUser(t.Context(), "bob", 1, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID, "newest first")
		assert.Equal(t, "http://minio/b/1.jpg", list[0].ImageURL)
	})

	t.Run("get is scoped to the owner", func(t *testing.T) {
		list, err := repo.ListByUser(t.Context(), "alice", 1, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)

		got, err := repo.Get(t.Context(), "alice", list[0].ID)
		require.NoError(t, err)
		assert.Equal(t, list[0].ID, got.ID)

		_, err = repo.Get(t.Context(), "bob", list[0].ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("pagination", func(t *testing.T) {
		list, err := repo.ListByUser(t.Context(), "bob", 2, 1)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = repo.ListByUser(t.Context(), "bob", 3, 1)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("row without a timestamp takes created_at", func(t *testing.T) {
		created := time.Date(2023, 6, 7, 8, 9, 10, 0, time.UTC)
		_, err := db.ExecContext(t.Context(),
			`INSERT INTO users_history (id, user_id, image_type, result, created_at) VALUES (?, ?, ?, ?, ?)`,
			"legacy-1", "carol", "image/png", `{"content":"old row"}`, created.Format(timeLayout))
		require.NoError(t, err)

		got, err := repo.Get(t.Context(), "carol", "legacy-1")
		require.NoError(t, err)
		assert.Equal(t, "old row", got.Result.Narrative.Content)
		assert.True(t, got.Result.Timestamp.Equal(created))
		assert.True(t, got.CreatedAt.Equal(created))
	})
}
