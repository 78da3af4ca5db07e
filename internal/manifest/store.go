package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// document is the external YAML schema: files and remotes as sequences,
// each sorted for stable diffs. The in-memory maps are rebuilt on load.
type document struct {
	Files    []*DataFile      `yaml:"files"`
	Remotes  []*RemoteBinding `yaml:"remotes"`
	Metadata Metadata         `yaml:"metadata,omitempty"`
}

// Load reads and parses the manifest at path. A missing file is
// ErrNoManifest; duplicate file paths or binding directories are load
// errors.
func Load(path string) (*DataCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoManifest, path)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	// Unknown top-level keys are not preserved; warn so they are not
	// dropped silently on the next save.
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err == nil {
		for key := range top {
			switch key {
			case "files", "remotes", "metadata":
			default:
				slog.Warn("ignoring unknown manifest key", "path", path, "key", key)
			}
		}
	}

	c := NewCollection()
	c.Metadata = doc.Metadata
	for _, f := range doc.Files {
		if _, ok := c.Files[f.Path]; ok {
			return nil, fmt.Errorf("manifest %s: duplicate file entry %q", path, f.Path)
		}
		c.Files[f.Path] = f
	}
	for _, b := range doc.Remotes {
		if _, ok := c.Remotes[b.Directory]; ok {
			return nil, fmt.Errorf("manifest %s: duplicate remote entry %q", path, b.Directory)
		}
		c.Remotes[b.Directory] = b
	}
	return c, nil
}

// Save atomically rewrites the manifest: serialize, write a temp file in
// the same directory, fsync, rename over the live file. A crash mid-save
// leaves the previous manifest intact.
func Save(path string, c *DataCollection) error {
	doc := document{Metadata: c.Metadata}
	for _, p := range c.SortedPaths() {
		doc.Files = append(doc.Files, c.Files[p])
	}
	dirs := make([]string, 0, len(c.Remotes))
	for d := range c.Remotes {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		doc.Remotes = append(doc.Remotes, c.Remotes[d])
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}

	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	success = true
	return nil
}

// Init creates a fresh empty manifest at path. It fails if one already
// exists.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("manifest already exists at %s", path)
	}
	return Save(path, NewCollection())
}
