// Package manifest owns the data manifest: the YAML document at the
// project root that records every tracked data file and every
// directory-to-remote binding.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// Filename is the manifest file name, looked up from the invocation
// directory upward to find the project root.
const Filename = "data_manifest.yml"

var (
	// ErrNoManifest indicates no manifest exists where one was expected.
	ErrNoManifest = errors.New("no data manifest found")

	// ErrNotInManifest indicates an operation referenced a path that has
	// no manifest entry.
	ErrNotInManifest = errors.New("file not in manifest")

	// ErrAlreadyInManifest indicates an add of a path that already has an
	// entry.
	ErrAlreadyInManifest = errors.New("file already in manifest")

	// ErrOverlappingBinding indicates a remote binding whose directory
	// nests with an existing binding.
	ErrOverlappingBinding = errors.New("directory overlaps an existing remote binding")
)

// DataFile is one tracked file. Path is the unique key: POSIX-normalized
// and relative to the project root.
type DataFile struct {
	Path     string    `yaml:"path"`
	MD5      string    `yaml:"md5"`
	Size     int64     `yaml:"size"`
	Modified time.Time `yaml:"modified,omitempty"`
	Tracked  bool      `yaml:"tracked"`
	URL      string    `yaml:"url,omitempty"`
}

// Basename returns the last path component, the name the file carries on
// a flat remote.
func (f *DataFile) Basename() string {
	return path.Base(f.Path)
}

// Directory returns the parent directory of the file, "" for root-level
// files.
func (f *DataFile) Directory() string {
	dir := path.Dir(f.Path)
	if dir == "." {
		return ""
	}
	return dir
}

// RemoteBinding associates one project directory with one remote
// deposition. Directory is the unique key.
type RemoteBinding struct {
	Directory    string `yaml:"directory"`
	Kind         string `yaml:"kind"`
	DepositionID string `yaml:"deposition_id,omitempty"`
	Name         string `yaml:"name"`
	SupportsMD5  bool   `yaml:"supports_md5"`

	// S3-specific fields (only used when Kind == "s3").
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// Metadata describes the project for deposition creation.
type Metadata struct {
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// DataCollection is the in-memory manifest: files keyed by relative path,
// remote bindings keyed by directory. It is owned by a single goroutine;
// transfer workers receive copies and report back, so there is no lock.
type DataCollection struct {
	Files    map[string]*DataFile
	Remotes  map[string]*RemoteBinding
	Metadata Metadata
}

// NewCollection returns an empty collection.
func NewCollection() *DataCollection {
	return &DataCollection{
		Files:   make(map[string]*DataFile),
		Remotes: make(map[string]*RemoteBinding),
	}
}

// Register inserts a new DataFile. It fails with ErrAlreadyInManifest if
// the path already has an entry.
func (c *DataCollection) Register(f *DataFile) error {
	if _, ok := c.Files[f.Path]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInManifest, f.Path)
	}
	c.Files[f.Path] = f
	return nil
}

// Get returns the entry for a relative path, or ErrNotInManifest.
func (c *DataCollection) Get(relPath string) (*DataFile, error) {
	f, ok := c.Files[relPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInManifest, relPath)
	}
	return f, nil
}

// Remove deletes the entry for a relative path. The file on disk is never
// touched.
func (c *DataCollection) Remove(relPath string) error {
	if _, ok := c.Files[relPath]; !ok {
		return fmt.Errorf("%w: %s", ErrNotInManifest, relPath)
	}
	delete(c.Files, relPath)
	return nil
}

// SetTracked toggles the tracked flag on an entry.
func (c *DataCollection) SetTracked(relPath string, tracked bool) error {
	f, err := c.Get(relPath)
	if err != nil {
		return err
	}
	if f.Tracked == tracked {
		if tracked {
			return fmt.Errorf("file %q is already tracked", relPath)
		}
		return fmt.Errorf("file %q is already untracked", relPath)
	}
	f.Tracked = tracked
	return nil
}

// SortedPaths returns all file paths in lexicographic order. Batch
// operations iterate in this order for deterministic reporting.
func (c *DataCollection) SortedPaths() []string {
	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// BindingFor returns the remote binding whose directory contains relPath,
// or nil when the file is unbound. Bindings never nest, so at most one
// can match.
func (c *DataCollection) BindingFor(relPath string) *RemoteBinding {
	dir := path.Dir(relPath)
	for dir != "." && dir != "/" {
		if b, ok := c.Remotes[dir]; ok {
			return b
		}
		dir = path.Dir(dir)
	}
	return nil
}

// FilesUnder returns the entries inside dir (recursively), sorted by path.
func (c *DataCollection) FilesUnder(dir string) []*DataFile {
	var files []*DataFile
	for _, p := range c.SortedPaths() {
		if underDirectory(p, dir) {
			files = append(files, c.Files[p])
		}
	}
	return files
}

// ValidateBindingDir checks that dir does not nest with any existing
// binding, in either direction.
func (c *DataCollection) ValidateBindingDir(dir string) error {
	for existing := range c.Remotes {
		if existing == dir {
			return fmt.Errorf("%w: %q is already linked", ErrOverlappingBinding, dir)
		}
		if underDirectory(dir, existing) {
			return fmt.Errorf("%w: %q is inside linked directory %q", ErrOverlappingBinding, dir, existing)
		}
		if underDirectory(existing, dir) {
			return fmt.Errorf("%w: %q contains linked directory %q", ErrOverlappingBinding, dir, existing)
		}
	}
	return nil
}

// RegisterRemote validates and inserts a binding. Re-linking the same
// directory replaces the old binding.
func (c *DataCollection) RegisterRemote(b *RemoteBinding) error {
	if _, ok := c.Remotes[b.Directory]; !ok {
		if err := c.ValidateBindingDir(b.Directory); err != nil {
			return err
		}
	}
	c.Remotes[b.Directory] = b
	return nil
}

// underDirectory reports whether relPath sits inside dir (not equal to
// it). Both are slash-separated project-relative paths.
func underDirectory(relPath, dir string) bool {
	if dir == "" {
		return relPath != ""
	}
	return strings.HasPrefix(relPath, dir+"/")
}
