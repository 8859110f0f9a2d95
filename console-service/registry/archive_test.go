package registry

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reaped.lz4")

	first := []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh session: alice@host -p 2222 | plan=basic", CreatedAt: 1700000000},
		{Owner: "bob", ConsoleID: "c2", ConnectionString: "ssh bob@host", CreatedAt: 1700000100},
	}
	second := []Record{
		{Owner: "carol", ConsoleID: "c3", ConnectionString: "forwarding to https://example.test", CreatedAt: 1700000200},
	}

	// Two separate sweeps append two separate frames.
	if err := ArchiveReaped(path, first); err != nil {
		t.Fatalf("failed to archive first batch: %s", err)
	}
	if err := ArchiveReaped(path, second); err != nil {
		t.Fatalf("failed to archive second batch: %s", err)
	}

	got, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("failed to read archive: %s", err)
	}

	want := append(append([]Record{}, first...), second...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("archived records mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveEmptyBatchIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reaped.lz4")

	if err := ArchiveReaped(path, nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %s", err)
	}

	got, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("failed to read archive: %s", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty archive, got %d records", len(got))
	}
}

func TestReadMissingArchive(t *testing.T) {
	got, err := ReadArchive(filepath.Join(t.TempDir(), "missing.lz4"))
	if err != nil {
		t.Fatalf("missing archive should not be an error, got %s", err)
	}
	if got != nil {
		t.Errorf("expected nil records for missing archive, got %+v", got)
	}
}
