// Package remote normalizes heterogeneous data-repository APIs behind a
// single adapter contract. The adapter set is a closed variant — figshare,
// zenodo, static URL, and S3 — extended by adding a kind to the factory
// and implementing the interface; there is no dynamic registration.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind names for the supported remotes. These are the strings accepted by
// sdf link and stored in the manifest binding.
const (
	KindFigshare = "figshare"
	KindZenodo   = "zenodo"
	KindURL      = "url"
	KindS3       = "s3"
)

var (
	// ErrUnsupported indicates the remote cannot perform the operation
	// (e.g. uploading to a read-only static-URL remote).
	ErrUnsupported = errors.New("operation not supported by this remote")

	// ErrAlreadyExists indicates an upload would clobber an existing
	// remote file and overwrite was not requested.
	ErrAlreadyExists = errors.New("file already exists on remote")

	// ErrAuth indicates the remote rejected the API token.
	ErrAuth = errors.New("remote authentication failed")
)

// APIError carries a non-success HTTP response from a remote API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error: HTTP %d: %s", e.Status, e.Body)
}

// File is one entry in a remote inventory. MD5 is empty when the remote
// does not expose checksums; equality checks then fall back to size.
type File struct {
	Name string
	MD5  string
	Size int64
	URL  string
}

// ProjectMeta is the metadata attached when a deposition is created:
// the project title plus the author identity from the user config.
type ProjectMeta struct {
	Title       string
	Description string
	AuthorName  string
	Email       string
	Affiliation string
}

// Upload describes one file to send to a remote. Name is the flat name
// the file takes in the deposition; MD5 digests the bytes that will be
// sent. Progress, when non-nil, receives byte-count deltas as the body
// streams.
type Upload struct {
	Name     string
	Path     string
	MD5      string
	Size     int64
	Progress func(n int64)
}

// Remote is the uniform adapter contract.
type Remote interface {
	// Kind returns the adapter's kind string.
	Kind() string

	// SupportsMD5 reports whether the remote's inventory exposes MD5s.
	SupportsMD5() bool

	// Authenticate stores the API token after a local format check; it
	// makes no call to the remote.
	Authenticate(ctx context.Context, token string) error

	// EnsureProject finds or creates the remote-side deposition for this
	// binding and returns its identifier. When linkOnly is true an
	// existing deposition with the same title is adopted; otherwise a
	// title collision is an error. Repeated calls with linkOnly true
	// return the same identifier.
	EnsureProject(ctx context.Context, meta ProjectMeta, linkOnly bool) (string, error)

	// ListFiles returns the deposition's file inventory.
	ListFiles(ctx context.Context) ([]File, error)

	// Upload streams one file into the deposition. With overwrite false,
	// an existing file of the same name fails with ErrAlreadyExists;
	// with overwrite true it is replaced. Partial failures abort the
	// upload; there is no resume across invocations.
	Upload(ctx context.Context, up Upload, overwrite bool) (File, error)

	// DownloadURL resolves a fetchable URL for an inventory entry. The
	// URL may embed the token or be pre-signed.
	DownloadURL(f File) (string, error)
}

// newHTTPClient returns the client all HTTP-backed adapters share: a
// bounded connect timeout and no overall deadline, so large transfers
// are never cut off mid-stream.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   30 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			Proxy:                 http.ProxyFromEnvironment,
		},
	}
}
