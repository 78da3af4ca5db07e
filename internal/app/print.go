package app

import (
	"fmt"
	"io"
	"path"
	"text/tabwriter"

	"scidataflow/internal/sdf"
)

// abbrevLen is how many hex digits of an MD5 the status table shows.
const abbrevLen = 8

func abbrev(md5sum string) string {
	if len(md5sum) > abbrevLen {
		return md5sum[:abbrevLen]
	}
	return md5sum
}

// md5Column renders the digest cell: the manifest digest, or an
// old → new transition when the file has drifted.
func md5Column(e sdf.StatusEntry) string {
	switch {
	case e.ManifestMD5 == "" && e.LocalMD5 == "":
		return ""
	case e.LocalMD5 != "" && e.ManifestMD5 != "" && e.LocalMD5 != e.ManifestMD5:
		return fmt.Sprintf("%s → %s", abbrev(e.ManifestMD5), abbrev(e.LocalMD5))
	case e.ManifestMD5 != "":
		return abbrev(e.ManifestMD5)
	default:
		return abbrev(e.LocalMD5)
	}
}

func localColumn(e sdf.StatusEntry) string {
	col := e.Local.String()
	if e.RemoteName == "" || !e.InManifest {
		return col
	}
	if e.Tracked {
		return col + ", tracked"
	}
	return col + ", untracked"
}

// PrintStatus writes the grouped status table: one block per directory,
// rows aligned with tabwriter. The remote column appears only when
// includeRemotes is set.
func PrintStatus(w io.Writer, entries []sdf.StatusEntry, includeRemotes bool) {
	byDir := make(map[string][]sdf.StatusEntry)
	var dirs []string
	for _, e := range entries {
		dir := path.Dir(e.Path)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], e)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	for _, dir := range dirs {
		fmt.Fprintf(tw, "[%s]\n", dir)
		for _, e := range byDir[dir] {
			name := path.Base(e.Path)
			modTime := ""
			if !e.Modified.IsZero() {
				modTime = e.Modified.Format("2006-01-02 15:04")
			}
			if includeRemotes {
				remoteCol := e.Remote.String()
				if e.Remote == sdf.RemoteDifferent && e.RemoteMD5 != "" {
					remoteCol = fmt.Sprintf("%s (%s)", remoteCol, abbrev(e.RemoteMD5))
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
					name, localColumn(e), md5Column(e), modTime, remoteCol)
			} else {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
					name, localColumn(e), md5Column(e), modTime)
			}
		}
	}
	tw.Flush()
}

// pluralize renders "1 file" / "3 files".
func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// PrintSyncSummary writes the push/pull outcome: a transfer count line
// and skip reasons grouped the way users act on them.
func PrintSyncSummary(w io.Writer, verb string, s *sdf.SyncSummary) {
	fmt.Fprintf(w, "%s %s.\n", verb, pluralize(s.Transferred, "file"))
	if s.Skipped() > 0 {
		fmt.Fprintf(w, "Skipped %s:\n", pluralize(s.Skipped(), "file"))
		printSkipGroup(w, "Untracked", s.Untracked)
		printSkipGroup(w, "Remote file is identical to local file", s.Identical)
		printSkipGroup(w, "Would overwrite (use --overwrite)", s.WouldOverwrite)
		printSkipGroup(w, "Local is modified (manifest and file disagree)", s.LocalModified)
		printSkipGroup(w, "Deleted locally, nothing to upload", s.DeletedLocal)
	}
	for _, err := range s.Errors {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func printSkipGroup(w io.Writer, reason string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", reason, pluralize(len(paths), "file"))
	for _, p := range paths {
		fmt.Fprintf(w, "   - %s\n", p)
	}
}

// PrintBulkSummary writes the bulk acquisition outcome.
func PrintBulkSummary(w io.Writer, filename string, s *sdf.BulkSummary) {
	fmt.Fprintf(w, "%s found in %q.\n", pluralize(s.URLs, "URL"), filename)
	fmt.Fprintf(w, "%s downloaded, %d added to manifest (%d already registered).\n",
		pluralize(s.Downloaded, "file"), s.Added, s.AlreadyRegistered)
	if s.SkippedExisting > 0 {
		fmt.Fprintf(w, "%s skipped because they exist (use --overwrite).\n",
			pluralize(s.SkippedExisting, "file"))
	}
	for _, err := range s.Errors {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
