package remote_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scidataflow/internal/remote"
)

// figshareMock implements just enough of the FigShare v2 API for the
// adapter: article listing/creation and the part-based upload protocol.
type figshareMock struct {
	server    *httptest.Server
	articles  []map[string]any
	files     []map[string]any
	uploaded  []byte
	completed bool
}

func newFigshareMock(t *testing.T) *figshareMock {
	t.Helper()
	m := &figshareMock{}
	mux := http.NewServeMux()

	mux.HandleFunc("/account/articles", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(m.articles)
		case http.MethodPost:
			m.articles = append(m.articles, map[string]any{"title": "Test Article", "id": 12345})
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"location": %q}`, m.server.URL+"/account/articles/12345")
		}
	})

	mux.HandleFunc("/account/articles/12345/files", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(m.files)
		case http.MethodPost:
			var init struct {
				Name string `json:"name"`
				MD5  string `json:"md5"`
				Size int64  `json:"size"`
			}
			json.NewDecoder(r.Body).Decode(&init)
			m.files = append(m.files, map[string]any{
				"id": 99, "name": init.Name, "size": init.Size,
				"computed_md5": init.MD5,
				"download_url": m.server.URL + "/download/99",
				"upload_url":   m.server.URL + "/upload/u-99",
			})
			fmt.Fprintf(w, `{"location": %q}`, m.server.URL+"/account/articles/12345/files/99")
		}
	})

	mux.HandleFunc("/account/articles/12345/files/99", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(m.files[len(m.files)-1])
		case http.MethodPost:
			m.completed = true
		}
	})

	mux.HandleFunc("/upload/u-99", func(w http.ResponseWriter, r *http.Request) {
		size := m.files[len(m.files)-1]["size"].(int64)
		json.NewEncoder(w).Encode(map[string]any{
			"parts": []map[string]any{
				{"partNo": 1, "startOffset": 0, "endOffset": size - 1},
			},
		})
	})

	mux.HandleFunc("/upload/u-99/1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.uploaded = body
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func TestFigshareEnsureProject(t *testing.T) {
	t.Run("creates article when none match", func(t *testing.T) {
		m := newFigshareMock(t)
		api := remote.NewFigshare("Test Article", "", m.server.URL)
		if err := api.Authenticate(context.Background(), "test-token"); err != nil {
			t.Fatal(err)
		}

		id, err := api.EnsureProject(context.Background(), remote.ProjectMeta{Title: "Test Article"}, false)
		if err != nil {
			t.Fatalf("EnsureProject() error = %v", err)
		}
		if id != "12345" {
			t.Errorf("article ID = %q, want %q", id, "12345")
		}
	})

	t.Run("existing title requires link-only", func(t *testing.T) {
		m := newFigshareMock(t)
		m.articles = []map[string]any{{"title": "Test Article", "id": 777}}
		api := remote.NewFigshare("Test Article", "", m.server.URL)
		api.Authenticate(context.Background(), "test-token")

		if _, err := api.EnsureProject(context.Background(), remote.ProjectMeta{}, false); err == nil ||
			!strings.Contains(err.Error(), "--link-only") {
			t.Errorf("EnsureProject() error = %v, want link-only hint", err)
		}

		id, err := api.EnsureProject(context.Background(), remote.ProjectMeta{}, true)
		if err != nil {
			t.Fatalf("EnsureProject(linkOnly) error = %v", err)
		}
		if id != "777" {
			t.Errorf("adopted article ID = %q, want %q", id, "777")
		}
	})
}

func TestFigshareUpload(t *testing.T) {
	t.Parallel()
	m := newFigshareMock(t)
	api := remote.NewFigshare("Test Article", "12345", m.server.URL)
	api.Authenticate(context.Background(), "test-token")

	path := filepath.Join(t.TempDir(), "x.tsv")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := api.Upload(context.Background(), remote.Upload{
		Name: "x.tsv",
		Path: path,
		MD5:  "60b725f10c9c85c70d97880dfe8191b3",
		Size: 2,
	}, false)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if string(m.uploaded) != "a\n" {
		t.Errorf("uploaded bytes = %q, want %q", m.uploaded, "a\n")
	}
	if !m.completed {
		t.Error("upload was not completed")
	}
	if got.Name != "x.tsv" || got.MD5 != "60b725f10c9c85c70d97880dfe8191b3" {
		t.Errorf("returned file = %+v", got)
	}

	// Second upload of the same name without overwrite must refuse.
	_, err = api.Upload(context.Background(), remote.Upload{Name: "x.tsv", Path: path, Size: 2}, false)
	if err == nil {
		t.Fatal("re-upload without overwrite succeeded")
	}
}

func TestFigshareListFiles(t *testing.T) {
	t.Parallel()
	m := newFigshareMock(t)
	m.files = []map[string]any{{
		"id": 1, "name": "x.tsv", "size": int64(2),
		"computed_md5": "60b725f10c9c85c70d97880dfe8191b3",
		"download_url": "https://figshare.example/file/1",
	}}
	api := remote.NewFigshare("Test Article", "12345", m.server.URL)
	api.Authenticate(context.Background(), "tok")

	files, err := api.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	f := files[0]
	if f.Name != "x.tsv" || f.MD5 != "60b725f10c9c85c70d97880dfe8191b3" || f.Size != 2 {
		t.Errorf("file = %+v", f)
	}

	url, err := api.DownloadURL(f)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://figshare.example/file/1?token=tok" {
		t.Errorf("DownloadURL = %q", url)
	}
}
