package remote

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Memory is an in-memory Remote for tests: it keeps a file inventory and
// records uploads. Use SeedFile to stage remote-side state and UploadCount
// to assert how many uploads a command performed.
type Memory struct {
	mu          sync.Mutex
	name        string
	supportsMD5 bool
	files       map[string]File
	content     map[string][]byte
	uploads     int
	token       string
}

// NewMemory creates an empty in-memory remote. supportsMD5 controls the
// capability flag so tests can exercise the size-only fallback.
func NewMemory(name string, supportsMD5 bool) *Memory {
	return &Memory{
		name:        name,
		supportsMD5: supportsMD5,
		files:       make(map[string]File),
		content:     make(map[string][]byte),
	}
}

func (m *Memory) Kind() string      { return "memory" }
func (m *Memory) SupportsMD5() bool { return m.supportsMD5 }

func (m *Memory) Authenticate(_ context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrAuth)
	}
	m.token = token
	return nil
}

func (m *Memory) EnsureProject(_ context.Context, meta ProjectMeta, _ bool) (string, error) {
	return "memory-" + m.name, nil
}

func (m *Memory) ListFiles(context.Context) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]File, 0, len(m.files))
	for _, f := range m.files {
		if !m.supportsMD5 {
			f.MD5 = ""
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Upload(_ context.Context, up Upload, overwrite bool) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[up.Name]; ok && !overwrite {
		return File{}, fmt.Errorf("%w: %s", ErrAlreadyExists, up.Name)
	}
	data, err := os.ReadFile(up.Path)
	if err != nil {
		return File{}, fmt.Errorf("opening %s: %w", up.Path, err)
	}
	if up.Progress != nil {
		up.Progress(int64(len(data)))
	}

	f := File{Name: up.Name, MD5: up.MD5, Size: int64(len(data))}
	m.files[up.Name] = f
	m.content[up.Name] = data
	m.uploads++
	return f, nil
}

func (m *Memory) DownloadURL(f File) (string, error) {
	if f.URL == "" {
		return "", fmt.Errorf("no URL for %s", f.Name)
	}
	return f.URL, nil
}

// SeedFile stages a file in the remote inventory without counting as an
// upload.
func (m *Memory) SeedFile(f File, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.Name] = f
	m.content[f.Name] = content
}

// SetSupportsMD5 toggles the capability flag, for tests covering the
// size-only fallback.
func (m *Memory) SetSupportsMD5(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supportsMD5 = v
}

// UploadCount returns the number of uploads performed.
func (m *Memory) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Content returns the stored bytes for a name.
func (m *Memory) Content(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.content[name]
	return b, ok
}

var _ Remote = (*Memory)(nil)
