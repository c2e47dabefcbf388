package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodHead && strings.TrimSuffix(path, "/") == "images":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[path] = b
		f.types[path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestStorePutAndRemove(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	ctx := context.Background()
	s, err := New(ctx, host, "us-east-1", "images", "access", "secret", false)
	require.NoError(t, err)
	require.NoError(t, s.Check(ctx))

	url, err := s.Put(ctx, "alice/1.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://"+host+"/images/alice/1.png", url)

	fake.mu.Lock()
	// body may be aws-chunked over plain http, so only presence is checked
	assert.NotEmpty(t, fake.objects["images/alice/1.png"])
	assert.Equal(t, "image/png", fake.types["images/alice/1.png"])
	fake.mu.Unlock()

	require.NoError(t, s.Remove(ctx, "alice/1.png"))
	fake.mu.Lock()
	assert.NotContains(t, fake.objects, "images/alice/1.png")
	fake.mu.Unlock()
}
