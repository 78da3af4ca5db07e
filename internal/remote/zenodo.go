package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ZenodoBaseURL is the production Zenodo API.
const ZenodoBaseURL = "https://zenodo.org/api"

// Zenodo talks to the Zenodo deposition API. One binding corresponds to
// one (draft) deposition; uploads stream into its file bucket, and the
// inventory exposes MD5 checksums prefixed "md5:".
type Zenodo struct {
	name         string
	depositionID string
	bucketURL    string
	client       *apiClient
}

// NewZenodo creates an adapter for the named deposition. depositionID is
// empty before link time; the bucket URL is recovered on demand from the
// deposition record. baseURL overrides the production API for tests.
func NewZenodo(name, depositionID, baseURL string) *Zenodo {
	if baseURL == "" {
		baseURL = ZenodoBaseURL
	}
	return &Zenodo{
		name:         name,
		depositionID: depositionID,
		client:       newAPIClient(baseURL, "Bearer"),
	}
}

func (z *Zenodo) Kind() string      { return KindZenodo }
func (z *Zenodo) SupportsMD5() bool { return true }

func (z *Zenodo) Authenticate(_ context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty zenodo token", ErrAuth)
	}
	z.client.token = token
	return nil
}

// zenodoDeposition is the subset of a deposition record we consume.
type zenodoDeposition struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Links struct {
		Bucket string `json:"bucket"`
	} `json:"links"`
}

// zenodoFile is the response shape of the deposition file listing.
type zenodoFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Checksum string `json:"checksum"`
	Links    struct {
		Download string `json:"download"`
	} `json:"links"`
}

// stripChecksumPrefix normalizes Zenodo's "md5:<hex>" checksums.
func stripChecksumPrefix(checksum string) string {
	return strings.TrimPrefix(checksum, "md5:")
}

func (z *Zenodo) EnsureProject(ctx context.Context, meta ProjectMeta, linkOnly bool) (string, error) {
	var depositions []zenodoDeposition
	if err := z.client.doJSON(ctx, http.MethodGet, "deposit/depositions", nil, &depositions); err != nil {
		return "", fmt.Errorf("listing zenodo depositions: %w", err)
	}

	var matches []zenodoDeposition
	for _, d := range depositions {
		if d.Title == z.name {
			matches = append(matches, d)
		}
	}
	switch {
	case len(matches) > 1:
		return "", fmt.Errorf("found multiple zenodo depositions titled %q", z.name)
	case len(matches) == 1:
		if !linkOnly {
			return "", fmt.Errorf("a zenodo deposition titled %q already exists; use --link-only to link it", z.name)
		}
		// The listing omits links; fetch the full record for the bucket.
		var full zenodoDeposition
		endpoint := fmt.Sprintf("deposit/depositions/%d", matches[0].ID)
		if err := z.client.doJSON(ctx, http.MethodGet, endpoint, nil, &full); err != nil {
			return "", fmt.Errorf("fetching zenodo deposition %d: %w", matches[0].ID, err)
		}
		z.depositionID = fmt.Sprintf("%d", full.ID)
		z.bucketURL = full.Links.Bucket
		return z.depositionID, nil
	}

	// No match: create an unpublished draft with the project metadata.
	if meta.Title == "" {
		return "", fmt.Errorf("zenodo requires a title; set one in the manifest metadata or with link --name")
	}
	description := meta.Description
	if description == "" {
		description = "Uploaded by scidataflow."
	}
	creator := map[string]any{"name": meta.AuthorName}
	if meta.Affiliation != "" {
		creator["affiliation"] = meta.Affiliation
	}
	body := map[string]any{
		"metadata": map[string]any{
			"title":       meta.Title,
			"upload_type": "dataset",
			"description": description,
			"creators":    []map[string]any{creator},
		},
	}

	var created zenodoDeposition
	if err := z.client.doJSON(ctx, http.MethodPost, "deposit/depositions", body, &created); err != nil {
		return "", fmt.Errorf("creating zenodo deposition: %w", err)
	}
	if created.Links.Bucket == "" {
		return "", fmt.Errorf("zenodo deposition %d has no bucket link", created.ID)
	}
	z.depositionID = fmt.Sprintf("%d", created.ID)
	z.bucketURL = created.Links.Bucket
	return z.depositionID, nil
}

func (z *Zenodo) requireDeposition() error {
	if z.depositionID == "" {
		return fmt.Errorf("zenodo remote %q has no deposition ID; was the directory linked?", z.name)
	}
	return nil
}

// bucket returns the deposition's bucket URL, fetching the deposition
// record when the adapter was rebuilt from the manifest.
func (z *Zenodo) bucket(ctx context.Context) (string, error) {
	if z.bucketURL != "" {
		return z.bucketURL, nil
	}
	if err := z.requireDeposition(); err != nil {
		return "", err
	}
	var dep zenodoDeposition
	endpoint := fmt.Sprintf("deposit/depositions/%s", z.depositionID)
	if err := z.client.doJSON(ctx, http.MethodGet, endpoint, nil, &dep); err != nil {
		return "", fmt.Errorf("fetching zenodo deposition %s: %w", z.depositionID, err)
	}
	if dep.Links.Bucket == "" {
		return "", fmt.Errorf("zenodo deposition %s has no bucket link", z.depositionID)
	}
	z.bucketURL = dep.Links.Bucket
	return z.bucketURL, nil
}

func (z *Zenodo) ListFiles(ctx context.Context) ([]File, error) {
	if err := z.requireDeposition(); err != nil {
		return nil, err
	}
	var files []zenodoFile
	endpoint := fmt.Sprintf("deposit/depositions/%s/files", z.depositionID)
	if err := z.client.doJSON(ctx, http.MethodGet, endpoint, nil, &files); err != nil {
		return nil, fmt.Errorf("listing zenodo files: %w", err)
	}
	out := make([]File, len(files))
	for i, zf := range files {
		out[i] = File{
			Name: zf.Filename,
			MD5:  stripChecksumPrefix(zf.Checksum),
			Size: zf.Filesize,
			URL:  zf.Links.Download,
		}
	}
	return out, nil
}

func (z *Zenodo) Upload(ctx context.Context, up Upload, overwrite bool) (File, error) {
	existing, err := z.ListFiles(ctx)
	if err != nil {
		return File{}, err
	}
	for _, ef := range existing {
		if ef.Name != up.Name {
			continue
		}
		if !overwrite {
			return File{}, fmt.Errorf("%w: %s in zenodo deposition %s", ErrAlreadyExists, up.Name, z.depositionID)
		}
		if err := z.deleteFile(ctx, up.Name); err != nil {
			return File{}, err
		}
	}

	bucketURL, err := z.bucket(ctx)
	if err != nil {
		return File{}, err
	}

	src, err := os.Open(up.Path)
	if err != nil {
		return File{}, fmt.Errorf("opening %s: %w", up.Path, err)
	}
	defer src.Close()

	var body io.Reader = src
	if up.Progress != nil {
		body = &progressReader{r: src, fn: up.Progress}
	}

	resp, err := z.client.do(ctx, http.MethodPut, bucketURL+"/"+up.Name, "application/octet-stream", body, up.Size)
	if err != nil {
		return File{}, fmt.Errorf("uploading %s to zenodo bucket: %w", up.Name, err)
	}
	defer resp.Body.Close()

	var uploaded struct {
		Key      string `json:"key"`
		Checksum string `json:"checksum"`
		Size     int64  `json:"size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return File{}, fmt.Errorf("decoding zenodo upload response: %w", err)
	}

	got := stripChecksumPrefix(uploaded.Checksum)
	if up.MD5 != "" && got != up.MD5 {
		return File{}, fmt.Errorf("zenodo reported checksum %s for %s, sent %s", got, up.Name, up.MD5)
	}
	return File{Name: up.Name, MD5: got, Size: uploaded.Size}, nil
}

func (z *Zenodo) deleteFile(ctx context.Context, name string) error {
	var files []zenodoFile
	endpoint := fmt.Sprintf("deposit/depositions/%s/files", z.depositionID)
	if err := z.client.doJSON(ctx, http.MethodGet, endpoint, nil, &files); err != nil {
		return err
	}
	for _, zf := range files {
		if zf.Filename == name {
			del := fmt.Sprintf("deposit/depositions/%s/files/%s", z.depositionID, zf.ID)
			if err := z.client.doJSON(ctx, http.MethodDelete, del, nil, nil); err != nil {
				return fmt.Errorf("deleting zenodo file %s: %w", name, err)
			}
			return nil
		}
	}
	return nil
}

// DownloadURL appends the access token as a query parameter, which the
// Zenodo file links accept for draft depositions.
func (z *Zenodo) DownloadURL(file File) (string, error) {
	if file.URL == "" {
		return "", fmt.Errorf("zenodo file %s has no download URL", file.Name)
	}
	sep := "?"
	if strings.Contains(file.URL, "?") {
		sep = "&"
	}
	return file.URL + sep + "access_token=" + z.client.token, nil
}

// progressReader reports byte deltas as an upload body streams.
type progressReader struct {
	r  io.Reader
	fn func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.fn(int64(n))
	}
	return n, err
}

var _ Remote = (*Zenodo)(nil)
