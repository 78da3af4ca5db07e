package sdf

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"scidataflow/internal/digest"
	"scidataflow/internal/manifest"
	"scidataflow/internal/remote"
)

// LocalStatus compares the filesystem against the manifest.
type LocalStatus int

const (
	// LocalCurrent means the file digest equals the manifest digest.
	LocalCurrent LocalStatus = iota
	// LocalModified means the digests differ.
	LocalModified
	// LocalDeleted means the manifest entry has no file on disk.
	LocalDeleted
	// LocalUntracked means a file on disk has no manifest entry.
	LocalUntracked
)

func (s LocalStatus) String() string {
	switch s {
	case LocalCurrent:
		return "current"
	case LocalModified:
		return "changed"
	case LocalDeleted:
		return "deleted"
	case LocalUntracked:
		return "not in manifest"
	}
	return "invalid"
}

// RemoteStatus compares the remote inventory against local state.
type RemoteStatus int

const (
	// RemoteUnknown means no remote was queried.
	RemoteUnknown RemoteStatus = iota
	// RemoteNotOnRemote means no remote file matches.
	RemoteNotOnRemote
	// RemoteIdentical means the MD5s agree, or the sizes agree when the
	// remote exposes no MD5.
	RemoteIdentical
	// RemoteDifferent means the remote file differs. Size-only
	// disagreement on an MD5-less remote lands here too: the
	// conservative reading, acted on only under --overwrite.
	RemoteDifferent
)

func (s RemoteStatus) String() string {
	switch s {
	case RemoteUnknown:
		return ""
	case RemoteNotOnRemote:
		return "not on remote"
	case RemoteIdentical:
		return "identical remote"
	case RemoteDifferent:
		return "different remote version"
	}
	return "invalid"
}

// StatusEntry is one row of the reconciliation: a manifest entry, an
// on-disk file, or both, joined with the remote inventory when queried.
type StatusEntry struct {
	Path        string
	Local       LocalStatus
	Remote      RemoteStatus
	Tracked     bool
	InManifest  bool
	ManifestMD5 string
	LocalMD5    string
	RemoteMD5   string
	Size        int64
	Modified    time.Time
	RemoteName  string // binding kind, "" when the directory is unbound
}

// localState digests a manifest entry's file and classifies it.
func (s *Service) localState(f *manifest.DataFile) (LocalStatus, string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(f.Path))
	exists, _, _, err := digest.Stat(full)
	if err != nil {
		return LocalDeleted, "", err
	}
	if !exists {
		return LocalDeleted, "", nil
	}
	md5sum, _, err := digest.File(full)
	if err != nil {
		return LocalDeleted, "", fmt.Errorf("digesting %s: %w", f.Path, err)
	}
	if md5sum == f.MD5 {
		return LocalCurrent, md5sum, nil
	}
	return LocalModified, md5sum, nil
}

// remoteState joins one manifest entry with its remote inventory match.
func remoteState(f *manifest.DataFile, rf *remote.File, supportsMD5 bool, localMD5 string, local LocalStatus) RemoteStatus {
	if rf == nil {
		return RemoteNotOnRemote
	}
	if supportsMD5 && rf.MD5 != "" {
		// Compare against the live local digest when the file exists,
		// falling back to the manifest digest for deleted files.
		ref := localMD5
		if local == LocalDeleted {
			ref = f.MD5
		}
		if rf.MD5 == ref {
			return RemoteIdentical
		}
		return RemoteDifferent
	}
	// No remote MD5: fall back to size + name, against the manifest size.
	if rf.Size == f.Size {
		return RemoteIdentical
	}
	return RemoteDifferent
}

// inventory is one binding's remote listing, keyed by flat filename.
type inventory struct {
	binding *manifest.RemoteBinding
	files   map[string]remote.File
}

// fetchInventories lists every bound remote concurrently.
func (s *Service) fetchInventories(ctx context.Context) (map[string]*inventory, error) {
	inventories := make(map[string]*inventory, len(s.data.Remotes))
	g, ctx := errgroup.WithContext(ctx)

	for dir, binding := range s.data.Remotes {
		inv := &inventory{binding: binding, files: make(map[string]remote.File)}
		inventories[dir] = inv
		g.Go(func() error {
			rem, err := s.openRemote(ctx, binding)
			if err != nil {
				return fmt.Errorf("remote %s (%s): %w", binding.Directory, binding.Kind, err)
			}
			files, err := rem.ListFiles(ctx)
			if err != nil {
				return fmt.Errorf("listing %s (%s): %w", binding.Directory, binding.Kind, err)
			}
			for _, f := range files {
				inv.files[f.Name] = f
			}
			s.logger.Debug("fetched remote inventory", "directory", binding.Directory, "files", len(files))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inventories, nil
}

// Status computes a row for every manifest entry, plus untracked files
// discovered under bound directories. Remote inventories are queried
// only when includeRemotes is set.
func (s *Service) Status(ctx context.Context, includeRemotes bool) ([]StatusEntry, error) {
	var inventories map[string]*inventory
	if includeRemotes {
		var err error
		inventories, err = s.fetchInventories(ctx)
		if err != nil {
			return nil, err
		}
	}

	var entries []StatusEntry
	for _, path := range s.data.SortedPaths() {
		f := s.data.Files[path]
		local, localMD5, err := s.localState(f)
		if err != nil {
			return nil, err
		}

		entry := StatusEntry{
			Path:        path,
			Local:       local,
			Tracked:     f.Tracked,
			InManifest:  true,
			ManifestMD5: f.MD5,
			LocalMD5:    localMD5,
			Size:        f.Size,
			Modified:    f.Modified,
		}
		if binding := s.data.BindingFor(path); binding != nil {
			entry.RemoteName = binding.Kind
			if includeRemotes {
				inv := inventories[binding.Directory]
				var rf *remote.File
				if match, ok := inv.files[f.Basename()]; ok {
					rf = &match
					entry.RemoteMD5 = match.MD5
				}
				entry.Remote = remoteState(f, rf, binding.SupportsMD5, localMD5, local)
			}
		}
		entries = append(entries, entry)
	}

	untracked, err := s.untrackedUnderBindings()
	if err != nil {
		return nil, err
	}
	entries = append(entries, untracked...)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// untrackedUnderBindings walks bound directories for on-disk files with
// no manifest entry.
func (s *Service) untrackedUnderBindings() ([]StatusEntry, error) {
	var entries []StatusEntry
	for dir := range s.data.Remotes {
		full := filepath.Join(s.root, filepath.FromSlash(dir))
		if _, err := os.Stat(full); err != nil {
			// A bound directory may legitimately not exist yet in a
			// fresh clone.
			continue
		}
		err := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := Canonicalize(s.root, p)
			if err != nil {
				return err
			}
			if _, ok := s.data.Files[rel]; ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, StatusEntry{
				Path:     rel,
				Local:    LocalUntracked,
				Size:     info.Size(),
				Modified: info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return entries, nil
}
