package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shellboxhq/shellbox/types"
)

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consoles.txt")
	r, err := New(path)
	if err != nil {
		t.Fatalf("failed to create registry: %s", err)
	}
	return r, path
}

func TestRoundTripPersistence(t *testing.T) {
	r, path := testRegistry(t)

	want := []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh session: alice@host -p 2222 | plan=basic", CreatedAt: 1700000000},
		{Owner: "bob", ConsoleID: "c2", ConnectionString: "ssh bob@host -p 2200", CreatedAt: 1700000100},
		{Owner: "alice", ConsoleID: "c3", ConnectionString: "forwarding to https://example.test", CreatedAt: 1700000200},
	}
	for _, record := range want {
		if err := r.Add(record); err != nil {
			t.Fatalf("failed to add record %s: %s", record.ConsoleID, err)
		}
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("failed to reload registry: %s", err)
	}
	if diff := cmp.Diff(want, reloaded.List()); diff != "" {
		t.Errorf("reloaded records mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consoles.txt")
	contents := strings.Join([]string{
		"alice|c1|ssh alice@host -p 2222|1700000000",
		"not a record at all",
		"onefield",
		"two|fields",
		"three|fields|only",
		"bob|c2|ssh bob@host|not-a-timestamp",
		"carol|c3|ssh carol@host -p 22|1700000300",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write test file: %s", err)
	}

	r, err := New(path)
	if err != nil {
		t.Fatalf("failed to load registry: %s", err)
	}

	want := []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh alice@host -p 2222", CreatedAt: 1700000000},
		{Owner: "carol", ConsoleID: "c3", ConnectionString: "ssh carol@host -p 22", CreatedAt: 1700000300},
	}
	if diff := cmp.Diff(want, r.List()); diff != "" {
		t.Errorf("records mismatch after skipping malformed lines (-want +got):\n%s", diff)
	}
}

func TestParseLineAnchored(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
		ok   bool
	}{
		{
			name: "plain",
			line: "alice|c1|ssh alice@host -p 2222|1700000000",
			want: Record{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh alice@host -p 2222", CreatedAt: 1700000000},
			ok:   true,
		},
		{
			// The connection string written at deploy time embeds a plan
			// suffix with its own separator; the anchored parser keeps it
			// intact.
			name: "separator inside connection string",
			line: "alice|c1|ssh session: alice@host -p 2222 | plan=basic|1700000000",
			want: Record{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh session: alice@host -p 2222 | plan=basic", CreatedAt: 1700000000},
			ok:   true,
		},
		{name: "too few separators", line: "a|b|c", ok: false},
		{name: "non-integer timestamp", line: "a|b|c|d|e", ok: false},
		{name: "empty timestamp", line: "a|b|c|", ok: false},
		{name: "negative timestamp", line: "a|b|c|-5", ok: false},
		{name: "timestamp overflows int64", line: "a|b|c|99999999999999999999", ok: false},
		{name: "empty line", line: "", ok: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := ParseLine(test.line)
			if ok != test.ok {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", test.line, ok, test.ok)
			}
			if ok && got != test.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", test.line, got, test.want)
			}
		})
	}
}

func TestFindForOwner(t *testing.T) {
	r, _ := testRegistry(t)

	records := []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh session: alice@host -p 2222 | plan=basic", CreatedAt: 1},
		{Owner: "bob", ConsoleID: "c2", ConnectionString: "ssh session: bob@host -p 2200", CreatedAt: 2},
	}
	for _, record := range records {
		if err := r.Add(record); err != nil {
			t.Fatalf("failed to add record: %s", err)
		}
	}

	tests := []struct {
		name       string
		owner      types.Owner
		identifier string
		wantID     types.ConsoleID
		wantErr    bool
	}{
		{"exact console id", "alice", "c1", "c1", false},
		{"connection string substring", "alice", "alice@host", "c1", false},
		{"plan suffix substring", "alice", "plan=basic", "c1", false},
		{"other owner's record never matches", "alice", "c2", "", true},
		{"other owner's substring never matches", "alice", "bob@host", "", true},
		{"no match at all", "alice", "zzz", "", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			record, err := r.FindForOwner(test.owner, test.identifier)
			if test.wantErr {
				if err != ErrConsoleNotFound {
					t.Fatalf("expected ErrConsoleNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if record.ConsoleID != test.wantID {
				t.Errorf("expected console %s, got %s", test.wantID, record.ConsoleID)
			}
		})
	}
}

func TestRemoveByConsoleID(t *testing.T) {
	r, path := testRegistry(t)

	for _, record := range []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh a", CreatedAt: 1},
		{Owner: "bob", ConsoleID: "c2", ConnectionString: "ssh b", CreatedAt: 2},
	} {
		if err := r.Add(record); err != nil {
			t.Fatalf("failed to add record: %s", err)
		}
	}

	removed, err := r.RemoveByConsoleID("c1")
	if err != nil {
		t.Fatalf("failed to remove record: %s", err)
	}
	if !removed {
		t.Error("expected removal to report true")
	}

	// Removing again reports false without error, so callers can treat
	// "already gone" as success.
	removed, err = r.RemoveByConsoleID("c1")
	if err != nil {
		t.Fatalf("unexpected error on second removal: %s", err)
	}
	if removed {
		t.Error("expected second removal to report false")
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("failed to reload registry: %s", err)
	}
	records := reloaded.List()
	if len(records) != 1 || records[0].ConsoleID != "c2" {
		t.Errorf("expected only c2 to remain, got %+v", records)
	}
}

func TestRemoveBatch(t *testing.T) {
	r, path := testRegistry(t)

	for _, record := range []Record{
		{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh a", CreatedAt: 1},
		{Owner: "bob", ConsoleID: "c2", ConnectionString: "ssh b", CreatedAt: 2},
		{Owner: "carol", ConsoleID: "c3", ConnectionString: "ssh c", CreatedAt: 3},
	} {
		if err := r.Add(record); err != nil {
			t.Fatalf("failed to add record: %s", err)
		}
	}

	removed, err := r.RemoveBatch([]types.ConsoleID{"c1", "c3", "does-not-exist"})
	if err != nil {
		t.Fatalf("failed to remove batch: %s", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 records removed, got %d", removed)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("failed to reload registry: %s", err)
	}
	records := reloaded.List()
	if len(records) != 1 || records[0].ConsoleID != "c2" {
		t.Errorf("expected only c2 to remain, got %+v", records)
	}
}

func TestUpdateConnectionString(t *testing.T) {
	r, path := testRegistry(t)

	if err := r.Add(Record{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh old", CreatedAt: 1700000000}); err != nil {
		t.Fatalf("failed to add record: %s", err)
	}

	found, err := r.UpdateConnectionString("c1", "ssh session: alice@newhost -p 2222")
	if err != nil {
		t.Fatalf("failed to update connection string: %s", err)
	}
	if !found {
		t.Error("expected update to find the record")
	}

	found, err = r.UpdateConnectionString("missing", "irrelevant")
	if err != nil {
		t.Fatalf("unexpected error updating missing record: %s", err)
	}
	if found {
		t.Error("expected update of missing record to report false")
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("failed to reload registry: %s", err)
	}
	record, ok := reloaded.Lookup("c1")
	if !ok {
		t.Fatal("record c1 missing after reload")
	}
	if record.ConnectionString != "ssh session: alice@newhost -p 2222" {
		t.Errorf("connection string not updated, got %q", record.ConnectionString)
	}
	if record.CreatedAt != 1700000000 {
		t.Errorf("CreatedAt changed by update: got %d", record.CreatedAt)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "consoles.txt")
	r, err := New(path)
	if err != nil {
		t.Fatalf("missing file should not be an error, got %s", err)
	}
	if len(r.List()) != 0 {
		t.Errorf("expected zero records, got %d", len(r.List()))
	}

	// The file is lazily created on first add.
	if err := r.Add(Record{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh a", CreatedAt: 1}); err != nil {
		t.Fatalf("failed to add to lazily created registry: %s", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected registry file to exist after first add: %s", err)
	}
}

func TestDuplicateConsoleIDRejected(t *testing.T) {
	r, _ := testRegistry(t)

	if err := r.Add(Record{Owner: "alice", ConsoleID: "c1", ConnectionString: "ssh a", CreatedAt: 1}); err != nil {
		t.Fatalf("failed to add record: %s", err)
	}
	if err := r.Add(Record{Owner: "bob", ConsoleID: "c1", ConnectionString: "ssh b", CreatedAt: 2}); err == nil {
		t.Error("expected duplicate console ID to be rejected")
	}
}
