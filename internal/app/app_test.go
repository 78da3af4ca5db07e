package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scidataflow/internal/app"
	"scidataflow/internal/manifest"
	"scidataflow/internal/sdf"
)

func TestFindRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := manifest.Init(filepath.Join(root, manifest.Filename)); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "data", "sub")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := app.FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot() error = %v", err)
	}
	// Resolve symlinks so macOS /var vs /private/var temp dirs compare.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("FindRoot() = %q, want %q", got, root)
	}

	_, err = app.FindRoot(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "sdf init") {
		t.Errorf("FindRoot() outside a project error = %v, want init hint", err)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	if err := app.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := os.Stat(manifest.Filename); err != nil {
		t.Fatal("manifest not created")
	}
	if err := app.Init(); err == nil {
		t.Error("second Init() succeeded, want error")
	}
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()
	entries := []sdf.StatusEntry{
		{
			Path:        "data/x.tsv",
			Local:       sdf.LocalCurrent,
			Tracked:     true,
			InManifest:  true,
			ManifestMD5: "60b725f10c9c85c70d97880dfe8191b3",
			LocalMD5:    "60b725f10c9c85c70d97880dfe8191b3",
			RemoteName:  "zenodo",
		},
		{
			Path:        "data/y.tsv",
			Local:       sdf.LocalModified,
			InManifest:  true,
			ManifestMD5: "60b725f10c9c85c70d97880dfe8191b3",
			LocalMD5:    "3b5d5c3712955042212316173ccf37be",
			RemoteName:  "zenodo",
		},
	}

	var sb strings.Builder
	app.PrintStatus(&sb, entries, false)
	out := sb.String()

	if !strings.Contains(out, "[data]") {
		t.Errorf("output missing directory group header:\n%s", out)
	}
	if !strings.Contains(out, "current, tracked") {
		t.Errorf("output missing tracked current row:\n%s", out)
	}
	if !strings.Contains(out, "60b725f1") {
		t.Errorf("output missing abbreviated md5:\n%s", out)
	}
	if !strings.Contains(out, "60b725f1 → 3b5d5c37") {
		t.Errorf("output missing md5 transition arrow:\n%s", out)
	}
}

func TestPrintSyncSummary(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	app.PrintSyncSummary(&sb, "Uploaded", &sdf.SyncSummary{
		Transferred: 1,
		Identical:   []string{"data/x.tsv"},
		Untracked:   []string{"data/y.tsv", "data/z.tsv"},
	})
	out := sb.String()

	if !strings.Contains(out, "Uploaded 1 file.") {
		t.Errorf("output missing transfer line:\n%s", out)
	}
	if !strings.Contains(out, "Skipped 3 files:") {
		t.Errorf("output missing skip total:\n%s", out)
	}
	if !strings.Contains(out, "Untracked: 2 files") {
		t.Errorf("output missing untracked group:\n%s", out)
	}
	if !strings.Contains(out, "- data/x.tsv") {
		t.Errorf("output missing per-file skip line:\n%s", out)
	}
}
