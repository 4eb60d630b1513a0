package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret", c.apiKey)
	assert.NotNil(t, c.httpClient)
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthcheck", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL, "").Healthcheck(context.Background()))
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	assert.Error(t, New(url, "").Healthcheck(context.Background()))
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL, "").Healthcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestUpload_Success(t *testing.T) {
	type received struct {
		fields  map[string]string
		content []byte
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/journals", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fields := map[string]string{}
		for _, k := range []string{"secret", "filename", "host", "records", "startedAt", "endedAt"} {
			fields[k] = r.FormValue(k)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to get file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)

		got <- received{fields: fields, content: content}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "journal_20260101.json.gz")
	require.NoError(t, os.WriteFile(path, []byte("test content"), 0644))

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	meta := UploadMetadata{Host: "node-1", Records: 42, StartedAt: start, EndedAt: start.Add(time.Hour)}

	require.NoError(t, New(server.URL, "mysecret").Upload(context.Background(), path, meta))

	r := <-got
	assert.Equal(t, map[string]string{
		"secret":    "mysecret",
		"filename":  "journal_20260101.json.gz",
		"host":      "node-1",
		"records":   "42",
		"startedAt": "2026-01-01T10:00:00Z",
		"endedAt":   "2026-01-01T11:00:00Z",
	}, r.fields)
	assert.Equal(t, "test content", string(r.content))
}

func TestUpload_FileNotFound(t *testing.T) {
	err := New("http://localhost:5000", "secret").Upload(context.Background(), "/nonexistent/file.json.gz", UploadMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	err := New(server.URL, "wrong-secret").Upload(context.Background(), path, UploadMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
