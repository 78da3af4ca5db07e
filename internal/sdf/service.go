// Package sdf is the reconciliation core: it joins the local filesystem,
// the data manifest, and remote inventories into per-file statuses, and
// drives add/update/status/push/pull and the other data operations. It
// never persists the manifest itself; the caller saves once after a
// mutating operation succeeds.
package sdf

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"scidataflow/internal/config"
	"scidataflow/internal/digest"
	"scidataflow/internal/manifest"
	"scidataflow/internal/remote"
	"scidataflow/internal/transfer"
)

// RemoteFactory builds the adapter for a binding. claimed is the
// manifest-side inventory handed to read-only remotes.
type RemoteFactory func(b *manifest.RemoteBinding, claimed []remote.File) (remote.Remote, error)

// Service coordinates the manifest, digests, remotes, and the transfer
// engine to perform the high-level data operations.
type Service struct {
	root      string
	data      *manifest.DataCollection
	keys      *config.AuthKeys
	user      *config.UserConfig
	engine    *transfer.Engine
	logger    Logger
	newRemote RemoteFactory
}

// NewService creates a Service rooted at the project directory. user may
// be nil for commands that never touch deposition metadata.
func NewService(root string, data *manifest.DataCollection, keys *config.AuthKeys, user *config.UserConfig, engine *transfer.Engine, newRemote RemoteFactory, logger Logger) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		root:      root,
		data:      data,
		keys:      keys,
		user:      user,
		engine:    engine,
		logger:    logger,
		newRemote: newRemote,
	}
}

// Data exposes the collection for persistence by the caller.
func (s *Service) Data() *manifest.DataCollection { return s.data }

// projectName is the default title for new depositions: the manifest
// metadata title when set, else the project directory name.
func (s *Service) projectName() string {
	if s.data.Metadata.Title != "" {
		return s.data.Metadata.Title
	}
	return filepath.Base(s.root)
}

func (s *Service) fullPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// newDataFile digests a file on disk and builds its manifest entry.
func (s *Service) newDataFile(relPath, sourceURL string) (*manifest.DataFile, error) {
	full := s.fullPath(relPath)
	md5sum, size, err := digest.File(full)
	if err != nil {
		return nil, err
	}
	_, _, mtime, err := digest.Stat(full)
	if err != nil {
		return nil, err
	}
	return &manifest.DataFile{
		Path:     relPath,
		MD5:      md5sum,
		Size:     size,
		Modified: mtime.UTC().Truncate(time.Second),
		URL:      sourceURL,
	}, nil
}

// Add registers files in the manifest, digesting each. With overwrite,
// an existing entry is re-digested and refreshed instead of rejected.
// Adds never touch remotes.
func (s *Service) Add(paths []string, overwrite bool) (int, error) {
	added := 0
	for _, p := range paths {
		relPath, err := Canonicalize(s.root, p)
		if err != nil {
			return added, err
		}
		f, err := s.newDataFile(relPath, "")
		if err != nil {
			return added, fmt.Errorf("adding %s: %w", relPath, err)
		}
		if existing, ok := s.data.Files[relPath]; ok {
			if !overwrite {
				return added, fmt.Errorf("%w: %s (use --overwrite to re-digest, or: sdf update %s)",
					manifest.ErrAlreadyInManifest, relPath, relPath)
			}
			f.Tracked = existing.Tracked
			f.URL = existing.URL
			s.data.Files[relPath] = f
		} else if err := s.data.Register(f); err != nil {
			return added, err
		}
		s.logger.Info("added file", "path", relPath, "md5", f.MD5)
		added++
	}
	return added, nil
}

// Update re-digests manifest entries unconditionally. An empty path list
// updates every entry.
func (s *Service) Update(paths []string) (int, error) {
	var relPaths []string
	if len(paths) == 0 {
		relPaths = s.data.SortedPaths()
	} else {
		for _, p := range paths {
			relPath, err := Canonicalize(s.root, p)
			if err != nil {
				return 0, err
			}
			relPaths = append(relPaths, relPath)
		}
	}

	updated := 0
	for _, relPath := range relPaths {
		f, err := s.data.Get(relPath)
		if err != nil {
			return updated, err
		}
		fresh, err := s.newDataFile(relPath, f.URL)
		if err != nil {
			return updated, fmt.Errorf("updating %s: %w", relPath, err)
		}
		f.MD5 = fresh.MD5
		f.Size = fresh.Size
		f.Modified = fresh.Modified
		s.logger.Info("updated file", "path", relPath, "md5", f.MD5)
		updated++
	}
	return updated, nil
}

// Remove drops manifest entries. Files on disk are never deleted.
func (s *Service) Remove(paths []string) (int, error) {
	removed := 0
	for _, p := range paths {
		relPath, err := Canonicalize(s.root, p)
		if err != nil {
			return removed, err
		}
		if err := s.data.Remove(relPath); err != nil {
			return removed, err
		}
		s.logger.Info("removed file", "path", relPath)
		removed++
	}
	return removed, nil
}

// Track enables remote synchronization for files.
func (s *Service) Track(paths []string) error {
	return s.setTracked(paths, true)
}

// Untrack disables remote synchronization for files.
func (s *Service) Untrack(paths []string) error {
	return s.setTracked(paths, false)
}

func (s *Service) setTracked(paths []string, tracked bool) error {
	for _, p := range paths {
		relPath, err := Canonicalize(s.root, p)
		if err != nil {
			return err
		}
		if err := s.data.SetTracked(relPath, tracked); err != nil {
			return err
		}
	}
	return nil
}

// SetMetadata updates the manifest metadata block. Empty arguments leave
// the existing values alone.
func (s *Service) SetMetadata(title, description string) {
	if title != "" {
		s.data.Metadata.Title = title
	}
	if description != "" {
		s.data.Metadata.Description = description
	}
}

// projectMeta assembles the deposition metadata from the manifest and
// user config.
func (s *Service) projectMeta(title string) remote.ProjectMeta {
	meta := remote.ProjectMeta{
		Title:       title,
		Description: s.data.Metadata.Description,
	}
	if s.user != nil {
		meta.AuthorName = s.user.User.Name
		meta.Email = s.user.User.Email
		meta.Affiliation = s.user.User.Affiliation
	}
	return meta
}

// claimedFiles builds the manifest-side inventory for a binding, used by
// read-only remotes whose listing is what the manifest claims.
func (s *Service) claimedFiles(dir string) []remote.File {
	var claimed []remote.File
	for _, f := range s.data.FilesUnder(dir) {
		if f.URL == "" {
			continue
		}
		claimed = append(claimed, remote.File{
			Name: f.Basename(),
			Size: f.Size,
			URL:  f.URL,
		})
	}
	return claimed
}

// openRemote builds and authenticates the adapter for a binding.
func (s *Service) openRemote(ctx context.Context, b *manifest.RemoteBinding) (remote.Remote, error) {
	rem, err := s.newRemote(b, s.claimedFiles(b.Directory))
	if err != nil {
		return nil, err
	}
	token, err := s.keys.Get(b.Kind)
	if err != nil {
		if b.Kind == remote.KindURL {
			return rem, nil
		}
		return nil, err
	}
	if err := rem.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	return rem, nil
}

// Link binds a directory to a remote: the token is persisted to the
// user's auth keys, the deposition is found or created, and the binding
// lands in the manifest. The directory must carry no tracked entries in
// subdirectories, since depositions store a flat filename set.
func (s *Service) Link(ctx context.Context, dir, kind, token, name string, linkOnly bool) error {
	relDir, err := Canonicalize(s.root, dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(s.fullPath(relDir))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%q is not a directory in the project", dir)
	}
	if err := s.data.ValidateBindingDir(relDir); err != nil {
		return err
	}
	for _, f := range s.data.FilesUnder(relDir) {
		if f.Tracked && strings.Contains(strings.TrimPrefix(f.Path, relDir+"/"), "/") {
			return fmt.Errorf("%w: %s", ErrSubpathInFlatRemote, f.Path)
		}
	}

	if name == "" {
		name = s.projectName()
	}

	binding := &manifest.RemoteBinding{
		Directory: relDir,
		Kind:      strings.ToLower(kind),
		Name:      name,
	}
	if binding.Kind == remote.KindS3 {
		// For S3 the name addresses the deposition: bucket[/prefix].
		bucket, prefix, _ := strings.Cut(name, "/")
		binding.Bucket, binding.Prefix = bucket, prefix
	}

	if token != "" {
		s.keys.Set(binding.Kind, token)
		if err := s.keys.Save(); err != nil {
			return err
		}
	}

	rem, err := s.openRemote(ctx, binding)
	if err != nil {
		return err
	}
	id, err := rem.EnsureProject(ctx, s.projectMeta(name), linkOnly)
	if err != nil {
		return err
	}
	binding.DepositionID = id
	binding.SupportsMD5 = rem.SupportsMD5()

	if err := s.data.RegisterRemote(binding); err != nil {
		return err
	}
	s.logger.Info("linked directory", "directory", relDir, "kind", binding.Kind, "deposition", id)
	return nil
}

// SyncSummary reports a push or pull batch: transfers performed, skips
// by reason, and per-file errors (which make the command fail without
// aborting the batch).
type SyncSummary struct {
	Transferred    int
	Identical      []string
	WouldOverwrite []string
	LocalModified  []string
	Untracked      []string
	DeletedLocal   []string
	Errors         []error
}

// Skipped returns the total number of skipped files.
func (ss *SyncSummary) Skipped() int {
	return len(ss.Identical) + len(ss.WouldOverwrite) + len(ss.LocalModified) +
		len(ss.Untracked) + len(ss.DeletedLocal)
}

// Push uploads tracked, locally-current files to their bound remotes.
// Modified files are refused unless overwrite is set, in which case the
// current bytes are uploaded and the manifest entry refreshed.
func (s *Service) Push(ctx context.Context, overwrite bool) (*SyncSummary, error) {
	inventories, err := s.fetchInventories(ctx)
	if err != nil {
		return nil, err
	}
	remotes, err := s.openBoundRemotes(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{}
	var jobs []transfer.Job

	for _, relPath := range s.data.SortedPaths() {
		f := s.data.Files[relPath]
		binding := s.data.BindingFor(relPath)
		if binding == nil {
			if f.Tracked {
				summary.Errors = append(summary.Errors, fmt.Errorf("%w: %s", ErrNoBinding, relPath))
			}
			continue
		}
		if !f.Tracked {
			summary.Untracked = append(summary.Untracked, relPath)
			continue
		}

		local, localMD5, err := s.localState(f)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		if local == LocalDeleted {
			summary.DeletedLocal = append(summary.DeletedLocal, relPath)
			continue
		}
		if local == LocalModified && !overwrite {
			summary.LocalModified = append(summary.LocalModified, relPath)
			continue
		}

		inv := inventories[binding.Directory]
		var rf *remote.File
		if match, ok := inv.files[f.Basename()]; ok {
			rf = &match
		}
		switch remoteState(f, rf, binding.SupportsMD5, localMD5, local) {
		case RemoteIdentical:
			summary.Identical = append(summary.Identical, relPath)
			continue
		case RemoteDifferent:
			if !overwrite {
				summary.WouldOverwrite = append(summary.WouldOverwrite, relPath)
				continue
			}
		}

		// Push uploads the current bytes; for a modified file the
		// manifest digest and size are refreshed from the transfer
		// result, so the job carries the live size, not the manifest's.
		_, liveSize, _, err := digest.Stat(s.fullPath(relPath))
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		jobs = append(jobs, transfer.Job{
			Direction:   transfer.Upload,
			Name:        f.Basename(),
			RelPath:     relPath,
			LocalPath:   s.fullPath(relPath),
			Remote:      remotes[binding.Directory],
			ExpectedMD5: localMD5,
			Size:        liveSize,
			Overwrite:   overwrite,
		})
	}

	s.commitResults(s.engine.Run(ctx, jobs), summary)
	return summary, nil
}

// Pull downloads tracked files from their bound remotes: deleted-local
// entries always, differing ones only under overwrite.
func (s *Service) Pull(ctx context.Context, overwrite bool) (*SyncSummary, error) {
	inventories, err := s.fetchInventories(ctx)
	if err != nil {
		return nil, err
	}
	remotes, err := s.openBoundRemotes(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{}
	var jobs []transfer.Job

	for _, relPath := range s.data.SortedPaths() {
		f := s.data.Files[relPath]
		binding := s.data.BindingFor(relPath)
		if binding == nil {
			if f.Tracked {
				summary.Errors = append(summary.Errors, fmt.Errorf("%w: %s", ErrNoBinding, relPath))
			}
			continue
		}
		if !f.Tracked {
			summary.Untracked = append(summary.Untracked, relPath)
			continue
		}

		inv := inventories[binding.Directory]
		match, onRemote := inv.files[f.Basename()]
		if !onRemote {
			continue
		}

		local, localMD5, err := s.localState(f)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}

		doDownload := false
		switch {
		case local == LocalDeleted:
			doDownload = true
		case local == LocalModified:
			if !overwrite {
				summary.LocalModified = append(summary.LocalModified, relPath)
				continue
			}
			doDownload = true
		default:
			switch remoteState(f, &match, binding.SupportsMD5, localMD5, local) {
			case RemoteIdentical:
				summary.Identical = append(summary.Identical, relPath)
			case RemoteDifferent:
				if !overwrite {
					summary.WouldOverwrite = append(summary.WouldOverwrite, relPath)
					continue
				}
				doDownload = true
			}
		}
		if !doDownload {
			continue
		}

		dlURL, err := remotes[binding.Directory].DownloadURL(match)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", relPath, err))
			continue
		}
		expected := match.MD5
		jobs = append(jobs, transfer.Job{
			Direction:   transfer.Download,
			Name:        f.Basename(),
			RelPath:     relPath,
			LocalPath:   s.fullPath(relPath),
			URL:         dlURL,
			ExpectedMD5: expected,
			Size:        match.Size,
			Overwrite:   true, // selection above already applied the skip policy
		})
	}

	s.commitResults(s.engine.Run(ctx, jobs), summary)
	return summary, nil
}

// PullURLs re-downloads manifest entries that carry a recorded source
// URL (from get or bulk).
func (s *Service) PullURLs(ctx context.Context, overwrite bool) (*SyncSummary, error) {
	summary := &SyncSummary{}
	var jobs []transfer.Job

	for _, relPath := range s.data.SortedPaths() {
		f := s.data.Files[relPath]
		if f.URL == "" {
			continue
		}
		exists, _, _, err := digest.Stat(s.fullPath(relPath))
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		if exists && !overwrite {
			summary.WouldOverwrite = append(summary.WouldOverwrite, relPath)
			continue
		}
		jobs = append(jobs, transfer.Job{
			Direction: transfer.Download,
			Name:      f.Basename(),
			RelPath:   relPath,
			LocalPath: s.fullPath(relPath),
			URL:       f.URL,
			Size:      f.Size,
			Overwrite: overwrite,
		})
	}

	s.commitResults(s.engine.Run(ctx, jobs), summary)
	return summary, nil
}

// openBoundRemotes builds authenticated adapters for every binding.
func (s *Service) openBoundRemotes(ctx context.Context) (map[string]remote.Remote, error) {
	remotes := make(map[string]remote.Remote, len(s.data.Remotes))
	for dir, binding := range s.data.Remotes {
		rem, err := s.openRemote(ctx, binding)
		if err != nil {
			return nil, fmt.Errorf("remote %s (%s): %w", dir, binding.Kind, err)
		}
		remotes[dir] = rem
	}
	return remotes, nil
}

// commitResults folds transfer results into the summary and the
// in-memory manifest. Persistence is the caller's single save afterward.
func (s *Service) commitResults(results []transfer.Result, summary *SyncSummary) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", r.Job.RelPath, r.Err))
		case r.Skipped:
			summary.Identical = append(summary.Identical, r.Job.RelPath)
		default:
			summary.Transferred++
			if f, ok := s.data.Files[r.Job.RelPath]; ok && r.MD5 != "" {
				f.MD5 = r.MD5
				f.Size = r.Size
				if _, _, mtime, err := digest.Stat(s.fullPath(r.Job.RelPath)); err == nil {
					f.Modified = mtime.UTC().Truncate(time.Second)
				}
			}
		}
	}
}

// Get downloads a single URL into the project and registers it, as if
// acquired from a static-URL remote. The destination name defaults to
// the URL's last path segment.
func (s *Service) Get(ctx context.Context, rawURL, name string, overwrite bool) (string, error) {
	dest := name
	if dest == "" {
		var err error
		dest, err = filenameFromURL(rawURL)
		if err != nil {
			return "", err
		}
	}
	relPath, err := Canonicalize(s.root, dest)
	if err != nil {
		return "", err
	}

	full := s.fullPath(relPath)
	if exists, _, _, _ := digest.Stat(full); exists && !overwrite {
		return "", fmt.Errorf("%q exists and would be overwritten; use --overwrite", relPath)
	}

	results := s.engine.Run(ctx, []transfer.Job{{
		Direction: transfer.Download,
		Name:      path.Base(relPath),
		RelPath:   relPath,
		LocalPath: full,
		URL:       rawURL,
		Overwrite: overwrite,
	}})
	if err := results[0].Err; err != nil {
		return "", err
	}

	if _, ok := s.data.Files[relPath]; ok {
		s.logger.Info("file already in manifest, not re-registered", "path", relPath)
		return relPath, nil
	}
	f, err := s.newDataFile(relPath, rawURL)
	if err != nil {
		return "", err
	}
	if err := s.data.Register(f); err != nil {
		return "", err
	}
	s.logger.Info("registered downloaded file", "path", relPath, "url", rawURL)
	return relPath, nil
}

// BulkSummary reports a bulk acquisition.
type BulkSummary struct {
	URLs              int
	Downloaded        int
	Added             int
	AlreadyRegistered int
	SkippedExisting   int
	Errors            []error
}

// Bulk reads URLs from one column of a TSV or CSV file (chosen by
// extension) and downloads each as Get would. Column is zero-indexed;
// header skips the first row.
func (s *Service) Bulk(ctx context.Context, filename string, column int, header, overwrite bool) (*BulkSummary, error) {
	var comma rune
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		comma = ','
	case ".tsv":
		comma = '\t'
	default:
		return nil, fmt.Errorf("unsupported bulk file type %q (need .tsv or .csv)", filepath.Ext(filename))
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if header && len(records) > 0 {
		records = records[1:]
	}

	summary := &BulkSummary{}
	var jobs []transfer.Job
	jobURL := make(map[string]string) // relPath -> source URL

	for _, record := range records {
		if column >= len(record) {
			summary.Errors = append(summary.Errors, fmt.Errorf("row has no column %d: %v", column, record))
			continue
		}
		rawURL := strings.TrimSpace(record[column])
		if rawURL == "" {
			continue
		}
		summary.URLs++

		dest, err := filenameFromURL(rawURL)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		relPath, err := Canonicalize(s.root, dest)
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		if exists, _, _, _ := digest.Stat(s.fullPath(relPath)); exists && !overwrite {
			summary.SkippedExisting++
			continue
		}
		jobs = append(jobs, transfer.Job{
			Direction: transfer.Download,
			Name:      path.Base(relPath),
			RelPath:   relPath,
			LocalPath: s.fullPath(relPath),
			URL:       rawURL,
			Overwrite: overwrite,
		})
		jobURL[relPath] = rawURL
	}

	for _, r := range s.engine.Run(ctx, jobs) {
		if r.Err != nil {
			summary.Errors = append(summary.Errors, fmt.Errorf("%s: %w", r.Job.RelPath, r.Err))
			continue
		}
		summary.Downloaded++
		if _, ok := s.data.Files[r.Job.RelPath]; ok {
			summary.AlreadyRegistered++
			continue
		}
		f, err := s.newDataFile(r.Job.RelPath, jobURL[r.Job.RelPath])
		if err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		if err := s.data.Register(f); err != nil {
			summary.Errors = append(summary.Errors, err)
			continue
		}
		summary.Added++
	}
	return summary, nil
}

// filenameFromURL extracts the last path segment of a URL.
func filenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive a filename from URL %q", rawURL)
	}
	return name, nil
}
