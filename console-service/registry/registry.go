// Package registry is the durable record store mapping owners to their
// consoles. The backing storage is a flat text file with one record per line;
// the package keeps an in-memory copy guarded by a RWMutex and rewrites the
// file atomically (write-temp-then-rename) on every removal or update, so a
// crash mid-write can never truncate the store. Additions append a single
// line instead.
package registry // import "github.com/shellboxhq/shellbox/console-service/registry"

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shellboxhq/shellbox/types"
	"github.com/shellboxhq/shellbox/utils"
)

// ErrConsoleNotFound is returned when an identifier can't be resolved to any
// record owned by the caller.
var ErrConsoleNotFound = utils.MakeError("no console found for your user")

// A Record describes one console: who owns it, how to reach it, and when it
// was created. ConnectionString is the only mutable field; it is replaced
// whenever a new remote session is captured. CreatedAt is Unix seconds and
// never changes after creation.
type Record struct {
	Owner            types.Owner
	ConsoleID        types.ConsoleID
	ConnectionString string
	CreatedAt        int64
}

// A Registry is the in-memory index over the backing file. All methods are
// safe for concurrent use.
type Registry struct {
	path string

	mu      sync.RWMutex
	records []Record
}

// New loads the registry from the given path. A missing file is treated as an
// empty store; the file is lazily created on the first addition.
func New(path string) (*Registry, error) {
	r := &Registry{path: path}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, utils.MakeError("couldn't open registry file %s: %s", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		record, ok := ParseLine(scanner.Text())
		if !ok {
			// Malformed lines are dropped silently on load; they must not
			// affect parsing of their neighbors.
			continue
		}
		r.records = append(r.records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, utils.MakeError("couldn't read registry file %s: %s", path, err)
	}

	return r, nil
}

// ParseLine decodes one stored line into a Record. Parsing is anchored rather
// than a naive split: the owner ends at the first separator, the console ID
// at the second, and the creation timestamp begins after the last separator.
// Everything in between is the connection string, which may itself contain
// `|` characters (deploy appends a ` | plan=<name>` suffix). A line with
// fewer than three separators, or whose final field is not an integer, is
// malformed and reported with ok=false.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	first := strings.Index(line, "|")
	if first < 0 {
		return Record{}, false
	}
	second := strings.Index(line[first+1:], "|")
	if second < 0 {
		return Record{}, false
	}
	second += first + 1
	last := strings.LastIndex(line, "|")
	if last <= second {
		return Record{}, false
	}

	createdAt, err := strconv.ParseInt(line[last+1:], 10, 64)
	if err != nil || createdAt < 0 {
		return Record{}, false
	}

	return Record{
		Owner:            types.Owner(line[:first]),
		ConsoleID:        types.ConsoleID(line[first+1 : second]),
		ConnectionString: line[second+1 : last],
		CreatedAt:        createdAt,
	}, true
}

// FormatLine encodes a Record as one stored line, without the trailing
// newline.
func FormatLine(record Record) string {
	return utils.Sprintf("%s|%s|%s|%d", record.Owner, record.ConsoleID, record.ConnectionString, record.CreatedAt)
}

// List returns a copy of all records in stable file order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ListByOwner returns all records belonging to the given owner, in stable
// file order.
func (r *Registry) ListByOwner(owner types.Owner) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, record := range r.records {
		if record.Owner == owner {
			out = append(out, record)
		}
	}
	return out
}

// CountForOwner returns the number of records belonging to the given owner.
func (r *Registry) CountForOwner(owner types.Owner) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, record := range r.records {
		if record.Owner == owner {
			count++
		}
	}
	return count
}

// Lookup finds the record with the given console ID.
func (r *Registry) Lookup(id types.ConsoleID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ConsoleID == id {
			return record, true
		}
	}
	return Record{}, false
}

// FindForOwner resolves an identifier to a record owned by the given owner.
// The identifier matches either the exact console ID or any substring of the
// stored connection string. Records owned by other owners never match, even
// if the identifier would.
func (r *Registry) FindForOwner(owner types.Owner, identifier string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.Owner != owner {
			continue
		}
		if string(record.ConsoleID) == identifier || strings.Contains(record.ConnectionString, identifier) {
			return record, nil
		}
	}
	return Record{}, ErrConsoleNotFound
}

// Add persists a new record by appending one line to the backing file. The
// file (and its directory) is created if it doesn't exist yet.
func (r *Registry) Add(record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.ConsoleID == record.ConsoleID {
			return utils.MakeError("a record for console %s already exists", record.ConsoleID)
		}
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return utils.MakeError("couldn't create registry directory: %s", err)
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return utils.MakeError("couldn't open registry file %s for append: %s", r.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(record) + "\n"); err != nil {
		return utils.MakeError("couldn't append record for console %s: %s", record.ConsoleID, err)
	}

	r.records = append(r.records, record)
	return nil
}

// RemoveByConsoleID deletes the record with the given console ID and rewrites
// the backing file. It reports whether a record was actually removed, so
// callers can treat "already gone" as success.
func (r *Registry) RemoveByConsoleID(id types.ConsoleID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0:0]
	removed := false
	for _, record := range r.records {
		if record.ConsoleID == id {
			removed = true
			continue
		}
		kept = append(kept, record)
	}
	if !removed {
		return false, nil
	}

	if err := r.rewrite(kept); err != nil {
		return false, err
	}
	r.records = kept
	return true, nil
}

// RemoveBatch deletes all records whose console IDs appear in ids, with a
// single rewrite of the backing file. It returns the number of records
// removed. This is the sweeper's removal path.
func (r *Registry) RemoveBatch(ids []types.ConsoleID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doomed := make(map[types.ConsoleID]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	kept := r.records[:0:0]
	removed := 0
	for _, record := range r.records {
		if doomed[record.ConsoleID] {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	if removed == 0 {
		return 0, nil
	}

	if err := r.rewrite(kept); err != nil {
		return 0, err
	}
	r.records = kept
	return removed, nil
}

// UpdateConnectionString replaces the stored connection string for the given
// console and rewrites the backing file. It reports whether a record was
// found.
func (r *Registry) UpdateConnectionString(id types.ConsoleID, connectionString string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := make([]Record, len(r.records))
	copy(updated, r.records)

	found := false
	for i := range updated {
		if updated[i].ConsoleID == id {
			updated[i].ConnectionString = connectionString
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	if err := r.rewrite(updated); err != nil {
		return false, err
	}
	r.records = updated
	return true, nil
}

// rewrite replaces the backing file's contents with the given records. The
// new contents are written to a temporary file in the same directory and
// renamed over the original, so readers never observe a partially written
// store. Callers must hold the write lock.
func (r *Registry) rewrite(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return utils.MakeError("couldn't create registry directory: %s", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return utils.MakeError("couldn't create temporary registry file: %s", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, record := range records {
		if _, err := w.WriteString(FormatLine(record) + "\n"); err != nil {
			tmp.Close()
			return utils.MakeError("couldn't write temporary registry file: %s", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return utils.MakeError("couldn't flush temporary registry file: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return utils.MakeError("couldn't close temporary registry file: %s", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return utils.MakeError("couldn't replace registry file %s: %s", r.path, err)
	}
	return nil
}
