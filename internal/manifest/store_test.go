package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"scidataflow/internal/manifest"
)

func sampleCollection() *manifest.DataCollection {
	c := manifest.NewCollection()
	c.Metadata = manifest.Metadata{Title: "Genome scans", Description: "Selection scan outputs"}
	c.Files["data/x.tsv"] = &manifest.DataFile{
		Path:     "data/x.tsv",
		MD5:      "60b725f10c9c85c70d97880dfe8191b3",
		Size:     2,
		Modified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Tracked:  true,
	}
	c.Files["data/y.tsv"] = &manifest.DataFile{
		Path: "data/y.tsv",
		MD5:  "3b5d5c3712955042212316173ccf37be",
		Size: 2,
		URL:  "https://example.com/y.tsv",
	}
	c.Remotes["data"] = &manifest.RemoteBinding{
		Directory:    "data",
		Kind:         "zenodo",
		DepositionID: "12345",
		Name:         "Genome scans",
		SupportsMD5:  true,
	}
	return c
}

func TestLoadSaveRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), manifest.Filename)
	want := sampleCollection()

	if err := manifest.Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(got.Files, want.Files) {
		t.Errorf("files round-trip mismatch:\n got %+v\nwant %+v", got.Files, want.Files)
	}
	if !reflect.DeepEqual(got.Remotes, want.Remotes) {
		t.Errorf("remotes round-trip mismatch:\n got %+v\nwant %+v", got.Remotes, want.Remotes)
	}
	if got.Metadata != want.Metadata {
		t.Errorf("metadata = %+v, want %+v", got.Metadata, want.Metadata)
	}

	// A second save-load must also be an identity.
	if err := manifest.Save(path, got); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	again, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if !reflect.DeepEqual(again.Files, want.Files) {
		t.Error("second round-trip not an identity")
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	_, err := manifest.Load(filepath.Join(t.TempDir(), manifest.Filename))
	if !errors.Is(err, manifest.ErrNoManifest) {
		t.Errorf("Load() error = %v, want ErrNoManifest", err)
	}
}

func TestLoadDuplicateEntries(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), manifest.Filename)
	doc := `files:
  - path: data/x.tsv
    md5: aa
    size: 1
    tracked: false
  - path: data/x.tsv
    md5: bb
    size: 2
    tracked: false
remotes: []
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := manifest.Load(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Load() error = %v, want duplicate entry error", err)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, manifest.Filename)
	if err := manifest.Save(path, sampleCollection()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != manifest.Filename {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contents = %v, want only %s", names, manifest.Filename)
	}
}

func TestInit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), manifest.Filename)
	if err := manifest.Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := manifest.Init(path); err == nil {
		t.Error("second Init() succeeded, want error")
	}
	c, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load() after Init error = %v", err)
	}
	if len(c.Files) != 0 || len(c.Remotes) != 0 {
		t.Error("initialized manifest is not empty")
	}
}

func TestRegisterAndRemove(t *testing.T) {
	t.Parallel()
	c := manifest.NewCollection()
	f := &manifest.DataFile{Path: "data/x.tsv", MD5: "aa", Size: 1}

	if err := c.Register(f); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register(f); !errors.Is(err, manifest.ErrAlreadyInManifest) {
		t.Errorf("second Register() error = %v, want ErrAlreadyInManifest", err)
	}
	if err := c.Remove("data/x.tsv"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := c.Remove("data/x.tsv"); !errors.Is(err, manifest.ErrNotInManifest) {
		t.Errorf("second Remove() error = %v, want ErrNotInManifest", err)
	}
}

func TestSetTracked(t *testing.T) {
	t.Parallel()
	c := manifest.NewCollection()
	c.Files["a"] = &manifest.DataFile{Path: "a"}

	if err := c.SetTracked("a", true); err != nil {
		t.Fatalf("SetTracked(true) error = %v", err)
	}
	if err := c.SetTracked("a", true); err == nil {
		t.Error("tracking an already-tracked file succeeded")
	}
	if err := c.SetTracked("a", false); err != nil {
		t.Fatalf("SetTracked(false) error = %v", err)
	}
	if err := c.SetTracked("missing", true); !errors.Is(err, manifest.ErrNotInManifest) {
		t.Errorf("SetTracked on missing file error = %v, want ErrNotInManifest", err)
	}
}

func TestValidateBindingDir(t *testing.T) {
	t.Parallel()
	c := manifest.NewCollection()
	c.Remotes["data/supplement"] = &manifest.RemoteBinding{Directory: "data/supplement", Kind: "figshare"}

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"same directory", "data/supplement", true},
		{"child of binding", "data/supplement/raw", true},
		{"parent of binding", "data", true},
		{"sibling", "data/figures", false},
		{"prefix but not ancestor", "data/supplementary", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateBindingDir(tt.dir)
			if tt.wantErr && !errors.Is(err, manifest.ErrOverlappingBinding) {
				t.Errorf("ValidateBindingDir(%q) = %v, want ErrOverlappingBinding", tt.dir, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateBindingDir(%q) = %v, want nil", tt.dir, err)
			}
		})
	}
}

func TestBindingFor(t *testing.T) {
	t.Parallel()
	c := manifest.NewCollection()
	b := &manifest.RemoteBinding{Directory: "data", Kind: "zenodo"}
	c.Remotes["data"] = b

	if got := c.BindingFor("data/x.tsv"); got != b {
		t.Error("BindingFor(data/x.tsv) did not find binding")
	}
	if got := c.BindingFor("data/sub/deep.tsv"); got != b {
		t.Error("BindingFor on nested path did not find ancestor binding")
	}
	if got := c.BindingFor("other/x.tsv"); got != nil {
		t.Error("BindingFor(other/x.tsv) found a binding, want nil")
	}
	if got := c.BindingFor("datafile.tsv"); got != nil {
		t.Error("BindingFor(datafile.tsv) matched prefix, want nil")
	}
}

func TestFilesUnder(t *testing.T) {
	t.Parallel()
	c := manifest.NewCollection()
	for _, p := range []string{"data/b.tsv", "data/a.tsv", "data/sub/c.tsv", "other/d.tsv"} {
		c.Files[p] = &manifest.DataFile{Path: p}
	}
	got := c.FilesUnder("data")
	want := []string{"data/a.tsv", "data/b.tsv", "data/sub/c.tsv"}
	if len(got) != len(want) {
		t.Fatalf("FilesUnder returned %d files, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.Path != want[i] {
			t.Errorf("FilesUnder[%d] = %q, want %q", i, f.Path, want[i])
		}
	}
}
