package remote

import (
	"context"
	"fmt"
)

// StaticURL is the read-only remote backing URL-sourced files: entries
// acquired with sdf get or sdf bulk, or a directory linked to plain
// HTTP(S) sources. Its inventory is whatever the manifest claims, there
// is no deposition to create, and uploads are unsupported. No MD5s:
// arbitrary HTTP servers expose none.
type StaticURL struct {
	files []File
}

// NewStaticURL creates an adapter over the manifest-claimed inventory.
func NewStaticURL(files []File) *StaticURL {
	return &StaticURL{files: files}
}

func (s *StaticURL) Kind() string      { return KindURL }
func (s *StaticURL) SupportsMD5() bool { return false }

// Authenticate accepts any token; static URLs carry their own access.
func (s *StaticURL) Authenticate(context.Context, string) error { return nil }

// EnsureProject is a no-op: there is no remote-side container.
func (s *StaticURL) EnsureProject(_ context.Context, meta ProjectMeta, _ bool) (string, error) {
	return meta.Title, nil
}

func (s *StaticURL) ListFiles(context.Context) ([]File, error) {
	return s.files, nil
}

func (s *StaticURL) Upload(_ context.Context, up Upload, _ bool) (File, error) {
	return File{}, fmt.Errorf("%w: cannot upload %s to a static URL remote", ErrUnsupported, up.Name)
}

func (s *StaticURL) DownloadURL(f File) (string, error) {
	if f.URL == "" {
		return "", fmt.Errorf("no URL recorded for %s", f.Name)
	}
	return f.URL, nil
}

var _ Remote = (*StaticURL)(nil)
