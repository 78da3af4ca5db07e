package sdf_test

import (
	"context"
	"testing"

	"scidataflow/internal/remote"
	"scidataflow/internal/sdf"
	"scidataflow/internal/testutil"
)

func TestStatusRemoteAxis(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteFile(t, "data/x.tsv", []byte("a\n"))
	mustAdd(t, p, "data/x.tsv")
	mustLink(t, p, "data")

	t.Run("not on remote", func(t *testing.T) {
		e := statusOf(t, p, "data/x.tsv", true)
		if e.Remote != sdf.RemoteNotOnRemote {
			t.Errorf("Remote = %v, want RemoteNotOnRemote", e.Remote)
		}
	})

	t.Run("identical by md5", func(t *testing.T) {
		p.Remote.SeedFile(remote.File{Name: "x.tsv", MD5: md5A, Size: 2}, []byte("a\n"))
		e := statusOf(t, p, "data/x.tsv", true)
		if e.Remote != sdf.RemoteIdentical {
			t.Errorf("Remote = %v, want RemoteIdentical", e.Remote)
		}
	})

	t.Run("different by md5", func(t *testing.T) {
		p.Remote.SeedFile(remote.File{Name: "x.tsv", MD5: "3b5d5c3712955042212316173ccf37be", Size: 2}, []byte("b\n"))
		e := statusOf(t, p, "data/x.tsv", true)
		if e.Remote != sdf.RemoteDifferent {
			t.Errorf("Remote = %v, want RemoteDifferent", e.Remote)
		}
	})

	t.Run("unknown when remotes not queried", func(t *testing.T) {
		e := statusOf(t, p, "data/x.tsv", false)
		if e.Remote != sdf.RemoteUnknown {
			t.Errorf("Remote = %v, want RemoteUnknown", e.Remote)
		}
	})
}

func TestStatusSizeFallbackWithoutMD5(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteFile(t, "data/x.tsv", []byte("a\n"))
	mustAdd(t, p, "data/x.tsv")

	// Flip the remote to one that exposes no MD5s, then link so the
	// binding records the capability.
	p.Remote.SetSupportsMD5(false)
	mustLink(t, p, "data")

	t.Run("same size is identical", func(t *testing.T) {
		p.Remote.SeedFile(remote.File{Name: "x.tsv", Size: 2}, []byte("b\n"))
		e := statusOf(t, p, "data/x.tsv", true)
		if e.Remote != sdf.RemoteIdentical {
			t.Errorf("Remote = %v, want RemoteIdentical (size fallback)", e.Remote)
		}
	})

	t.Run("size mismatch is different", func(t *testing.T) {
		p.Remote.SeedFile(remote.File{Name: "x.tsv", Size: 99}, []byte("big"))
		e := statusOf(t, p, "data/x.tsv", true)
		if e.Remote != sdf.RemoteDifferent {
			t.Errorf("Remote = %v, want RemoteDifferent (conservative)", e.Remote)
		}
	})
}

func TestStatusUntrackedDiscovery(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteFile(t, "data/known.tsv", []byte("a\n"))
	mustAdd(t, p, "data/known.tsv")
	mustLink(t, p, "data")
	p.WriteFile(t, "data/stray.tsv", []byte("unregistered\n"))

	e := statusOf(t, p, "data/stray.tsv", false)
	if e.Local != sdf.LocalUntracked {
		t.Errorf("Local = %v, want LocalUntracked", e.Local)
	}
	if e.InManifest {
		t.Error("stray file reported as in manifest")
	}
}

func TestStatusDeterministicOrder(t *testing.T) {
	p := testutil.NewProject(t)
	for _, name := range []string{"data/c.tsv", "data/a.tsv", "data/b.tsv"} {
		p.WriteFile(t, name, []byte(name))
	}
	mustAdd(t, p, "data/c.tsv", "data/a.tsv", "data/b.tsv")

	entries, err := p.Service.Status(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Path > entries[i].Path {
			t.Fatalf("entries out of order: %q before %q", entries[i-1].Path, entries[i].Path)
		}
	}
}
