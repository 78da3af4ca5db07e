package remote_test

import (
	"context"
	"errors"
	"testing"

	"scidataflow/internal/manifest"
	"scidataflow/internal/remote"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		binding  manifest.RemoteBinding
		wantKind string
		wantErr  bool
	}{
		{
			name:     "figshare",
			binding:  manifest.RemoteBinding{Kind: "figshare", Name: "T", DepositionID: "1"},
			wantKind: "figshare",
		},
		{
			name:     "zenodo",
			binding:  manifest.RemoteBinding{Kind: "zenodo", Name: "T", DepositionID: "2"},
			wantKind: "zenodo",
		},
		{
			name:     "static url",
			binding:  manifest.RemoteBinding{Kind: "url"},
			wantKind: "url",
		},
		{
			name:     "s3",
			binding:  manifest.RemoteBinding{Kind: "s3", Bucket: "b", Prefix: "p"},
			wantKind: "s3",
		},
		{
			name:    "unknown kind",
			binding: manifest.RemoteBinding{Kind: "dryad"},
			wantErr: true,
		},
		{
			name:    "memory not constructible",
			binding: manifest.RemoteBinding{Kind: "memory"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := remote.New(&tt.binding, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if r.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", r.Kind(), tt.wantKind)
			}
		})
	}
}

func TestStaticURL(t *testing.T) {
	t.Parallel()
	claimed := []remote.File{{Name: "f.gz", Size: 10, URL: "https://host/f.gz"}}
	s := remote.NewStaticURL(claimed)

	if s.SupportsMD5() {
		t.Error("SupportsMD5() = true for static URL remote")
	}
	files, err := s.ListFiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "f.gz" {
		t.Errorf("ListFiles() = %+v", files)
	}

	_, err = s.Upload(context.Background(), remote.Upload{Name: "f.gz"}, false)
	if !errors.Is(err, remote.ErrUnsupported) {
		t.Errorf("Upload() error = %v, want ErrUnsupported", err)
	}

	url, err := s.DownloadURL(files[0])
	if err != nil || url != "https://host/f.gz" {
		t.Errorf("DownloadURL() = %q, %v", url, err)
	}
}
