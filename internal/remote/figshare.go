package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// FigshareBaseURL is the production FigShare v2 API.
const FigshareBaseURL = "https://api.figshare.com/v2"

// Figshare talks to the FigShare article API. One binding corresponds to
// one article; files live flat inside it. FigShare exposes computed MD5s
// in its inventory and uploads go through its part-based protocol
// (initiate, PUT parts, complete).
type Figshare struct {
	name      string
	articleID string
	client    *apiClient
}

// NewFigshare creates an adapter for the named article. articleID is
// empty before EnsureProject has run (i.e. before link time). baseURL
// overrides the production API for tests.
func NewFigshare(name, articleID, baseURL string) *Figshare {
	if baseURL == "" {
		baseURL = FigshareBaseURL
	}
	return &Figshare{
		name:      name,
		articleID: articleID,
		client:    newAPIClient(baseURL, "token"),
	}
}

func (f *Figshare) Kind() string      { return KindFigshare }
func (f *Figshare) SupportsMD5() bool { return true }

func (f *Figshare) Authenticate(_ context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty figshare token", ErrAuth)
	}
	f.client.token = token
	return nil
}

// figshareArticle is the subset of the article listing we consume.
type figshareArticle struct {
	Title string `json:"title"`
	ID    int64  `json:"id"`
}

// figshareFile is the response shape of GET /account/articles/{id}/files.
type figshareFile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ComputedMD5 string `json:"computed_md5"`
	DownloadURL string `json:"download_url"`
	UploadURL   string `json:"upload_url"`
}

func (f *Figshare) EnsureProject(ctx context.Context, meta ProjectMeta, linkOnly bool) (string, error) {
	var articles []figshareArticle
	if err := f.client.doJSON(ctx, http.MethodGet, "account/articles", nil, &articles); err != nil {
		return "", fmt.Errorf("listing figshare articles: %w", err)
	}

	var matches []figshareArticle
	for _, a := range articles {
		if a.Title == f.name {
			matches = append(matches, a)
		}
	}
	switch {
	case len(matches) > 1:
		return "", fmt.Errorf("found multiple figshare articles titled %q", f.name)
	case len(matches) == 1:
		if !linkOnly {
			return "", fmt.Errorf("a figshare article titled %q already exists; use --link-only to link it", f.name)
		}
		f.articleID = fmt.Sprintf("%d", matches[0].ID)
		return f.articleID, nil
	}

	// No match: create a new article. The new ID comes back as the last
	// segment of the response's location URL.
	body := map[string]string{"title": f.name, "defined_type": "dataset"}
	if meta.Description != "" {
		body["description"] = meta.Description
	}
	var created struct {
		Location string `json:"location"`
	}
	if err := f.client.doJSON(ctx, http.MethodPost, "account/articles", body, &created); err != nil {
		return "", fmt.Errorf("creating figshare article: %w", err)
	}
	if created.Location == "" {
		return "", fmt.Errorf("figshare create response has no location")
	}
	parts := strings.Split(strings.TrimSuffix(created.Location, "/"), "/")
	f.articleID = parts[len(parts)-1]
	return f.articleID, nil
}

func (f *Figshare) requireArticle() error {
	if f.articleID == "" {
		return fmt.Errorf("figshare remote %q has no article ID; was the directory linked?", f.name)
	}
	return nil
}

func (f *Figshare) ListFiles(ctx context.Context) ([]File, error) {
	if err := f.requireArticle(); err != nil {
		return nil, err
	}
	var files []figshareFile
	endpoint := fmt.Sprintf("account/articles/%s/files", f.articleID)
	if err := f.client.doJSON(ctx, http.MethodGet, endpoint, nil, &files); err != nil {
		return nil, fmt.Errorf("listing figshare files: %w", err)
	}
	out := make([]File, len(files))
	for i, ff := range files {
		out[i] = File{
			Name: ff.Name,
			MD5:  ff.ComputedMD5,
			Size: ff.Size,
			URL:  ff.DownloadURL,
		}
	}
	return out, nil
}

// figsharePendingUpload describes how the upload service wants the file
// split. Offsets are inclusive.
type figsharePendingUpload struct {
	Parts []struct {
		PartNo      int   `json:"partNo"`
		StartOffset int64 `json:"startOffset"`
		EndOffset   int64 `json:"endOffset"`
	} `json:"parts"`
}

func (f *Figshare) Upload(ctx context.Context, up Upload, overwrite bool) (File, error) {
	if err := f.requireArticle(); err != nil {
		return File{}, err
	}

	// FigShare has no replace operation: an existing file of the same
	// name must be deleted first, and only under overwrite.
	existing, err := f.ListFiles(ctx)
	if err != nil {
		return File{}, err
	}
	for _, ef := range existing {
		if ef.Name != up.Name {
			continue
		}
		if !overwrite {
			return File{}, fmt.Errorf("%w: %s in figshare article %s", ErrAlreadyExists, up.Name, f.articleID)
		}
		if err := f.deleteFile(ctx, ef.Name); err != nil {
			return File{}, err
		}
	}

	// Initiate: POST name/md5/size, follow the returned location to the
	// file record, then fetch the part layout from its upload URL.
	initBody := map[string]any{"name": up.Name, "md5": up.MD5, "size": up.Size}
	var initResp struct {
		Location string `json:"location"`
	}
	endpoint := fmt.Sprintf("account/articles/%s/files", f.articleID)
	if err := f.client.doJSON(ctx, http.MethodPost, endpoint, initBody, &initResp); err != nil {
		return File{}, fmt.Errorf("initiating figshare upload of %s: %w", up.Name, err)
	}

	var record figshareFile
	if err := f.client.doJSON(ctx, http.MethodGet, initResp.Location, nil, &record); err != nil {
		return File{}, fmt.Errorf("fetching figshare upload record: %w", err)
	}
	var pending figsharePendingUpload
	if err := f.client.doJSON(ctx, http.MethodGet, record.UploadURL, nil, &pending); err != nil {
		return File{}, fmt.Errorf("fetching figshare part layout: %w", err)
	}

	if err := f.uploadParts(ctx, up, record.UploadURL, pending); err != nil {
		return File{}, err
	}

	// Complete the upload so FigShare assembles and checksums the parts.
	completeEndpoint := fmt.Sprintf("account/articles/%s/files/%d", f.articleID, record.ID)
	if err := f.client.doJSON(ctx, http.MethodPost, completeEndpoint, map[string]any{}, nil); err != nil {
		return File{}, fmt.Errorf("completing figshare upload of %s: %w", up.Name, err)
	}

	return File{Name: up.Name, MD5: up.MD5, Size: up.Size}, nil
}

func (f *Figshare) uploadParts(ctx context.Context, up Upload, uploadURL string, pending figsharePendingUpload) error {
	src, err := os.Open(up.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", up.Path, err)
	}
	defer src.Close()

	for _, part := range pending.Parts {
		length := part.EndOffset - part.StartOffset + 1
		buf := make([]byte, length)
		if _, err := src.ReadAt(buf, part.StartOffset); err != nil && err != io.EOF {
			return fmt.Errorf("reading part %d of %s: %w", part.PartNo, up.Path, err)
		}

		partURL := fmt.Sprintf("%s/%d", uploadURL, part.PartNo)
		resp, err := f.client.do(ctx, http.MethodPut, partURL, "application/octet-stream", bytes.NewReader(buf), length)
		if err != nil {
			return fmt.Errorf("uploading part %d of %s: %w", part.PartNo, up.Name, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if up.Progress != nil {
			up.Progress(length)
		}
	}
	return nil
}

func (f *Figshare) deleteFile(ctx context.Context, name string) error {
	var files []figshareFile
	endpoint := fmt.Sprintf("account/articles/%s/files", f.articleID)
	if err := f.client.doJSON(ctx, http.MethodGet, endpoint, nil, &files); err != nil {
		return err
	}
	for _, ff := range files {
		if ff.Name == name {
			del := fmt.Sprintf("account/articles/%s/files/%d", f.articleID, ff.ID)
			if err := f.client.doJSON(ctx, http.MethodDelete, del, nil, nil); err != nil {
				return fmt.Errorf("deleting figshare file %s: %w", name, err)
			}
			return nil
		}
	}
	return nil
}

// DownloadURL appends the API token; FigShare private links require it.
func (f *Figshare) DownloadURL(file File) (string, error) {
	if file.URL == "" {
		return "", fmt.Errorf("figshare file %s has no download URL", file.Name)
	}
	return file.URL + "?token=" + f.client.token, nil
}

var _ Remote = (*Figshare)(nil)
