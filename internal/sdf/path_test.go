package sdf_test

import (
	"errors"
	"path/filepath"
	"testing"

	"scidataflow/internal/sdf"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"absolute inside root", filepath.Join(root, "data", "x.tsv"), "data/x.tsv", false},
		{"dot segments collapse", filepath.Join(root, "data", ".", "sub", "..", "x.tsv"), "data/x.tsv", false},
		{"root itself", root, ".", false},
		{"escapes root", filepath.Join(root, ".."), "", true},
		{"escapes root deeply", filepath.Join(root, "..", "other", "x.tsv"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sdf.Canonicalize(root, tt.input)
			if tt.wantErr {
				if !errors.Is(err, sdf.ErrOutsideProject) {
					t.Errorf("Canonicalize(%q) error = %v, want ErrOutsideProject", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonicalize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
