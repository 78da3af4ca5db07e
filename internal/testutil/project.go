// Package testutil provides fixtures for service-level tests: a
// temporary project layout and a wired Service backed by the in-memory
// remote.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"scidataflow/internal/config"
	"scidataflow/internal/manifest"
	"scidataflow/internal/remote"
	"scidataflow/internal/sdf"
	"scidataflow/internal/transfer"
)

// Project is a scratch project on disk plus its wired service.
type Project struct {
	Root    string
	Data    *manifest.DataCollection
	Service *sdf.Service
	Remote  *remote.Memory
}

// NewProject builds a temp project with an empty manifest and a Service
// whose remote factory returns the embedded in-memory remote for every
// kind except "url", which gets a static-URL adapter.
// HOME is pointed at a scratch directory so config and auth keys never
// touch the developer's real files.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	keys, err := config.LoadAuthKeys()
	if err != nil {
		t.Fatal(err)
	}
	keys.Set("memory", "test-token")
	keys.Set("figshare", "test-token")
	keys.Set("zenodo", "test-token")

	data := manifest.NewCollection()
	mem := remote.NewMemory("test", true)
	factory := func(b *manifest.RemoteBinding, claimed []remote.File) (remote.Remote, error) {
		if b.Kind == remote.KindURL {
			return remote.NewStaticURL(claimed), nil
		}
		return mem, nil
	}

	engine := transfer.NewEngine(transfer.DefaultConfig(), nil)
	user := &config.UserConfig{User: config.User{Name: "Test Author"}}
	svc := sdf.NewService(root, data, keys, user, engine, factory, sdf.NewNopLogger())

	return &Project{Root: root, Data: data, Service: svc, Remote: mem}
}

// WriteFile creates a file under the project root, making parent
// directories as needed, and returns its absolute path.
func (p *Project) WriteFile(t *testing.T, relPath string, content []byte) string {
	t.Helper()
	full := filepath.Join(p.Root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		t.Fatal(err)
	}
	return full
}

// RemoveFile deletes a file under the project root.
func (p *Project) RemoveFile(t *testing.T, relPath string) {
	t.Helper()
	if err := os.Remove(filepath.Join(p.Root, filepath.FromSlash(relPath))); err != nil {
		t.Fatal(err)
	}
}
