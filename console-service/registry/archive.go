package registry // import "github.com/shellboxhq/shellbox/console-service/registry"

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
	"github.com/shellboxhq/shellbox/utils"
)

// The sweeper archives every record it reaps so an operator can answer "what
// happened to my console" after the fact. Each ArchiveReaped call appends one
// independently-readable lz4 frame to the archive file; frames are
// concatenable, which is exactly what appending produces.

// ArchiveReaped appends the given records to the archive at path as a single
// compressed frame. An empty record set is a no-op.
func ArchiveReaped(path string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	var plain bytes.Buffer
	for _, record := range records {
		plain.WriteString(FormatLine(record))
		plain.WriteByte('\n')
	}

	var frame bytes.Buffer
	zw := lz4.NewWriter(&frame)
	if _, err := zw.Write(plain.Bytes()); err != nil {
		return utils.MakeError("couldn't compress reaped records: %s", err)
	}
	if err := zw.Close(); err != nil {
		return utils.MakeError("couldn't finish compressing reaped records: %s", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return utils.MakeError("couldn't create archive directory: %s", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return utils.MakeError("couldn't open archive file %s: %s", path, err)
	}
	defer f.Close()

	if _, err := f.Write(frame.Bytes()); err != nil {
		return utils.MakeError("couldn't append to archive file %s: %s", path, err)
	}
	return nil
}

// ReadArchive decompresses every frame in the archive at path and parses the
// recovered lines with the same anchored parser used by the live store. A
// missing archive is treated as empty.
func ReadArchive(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, utils.MakeError("couldn't open archive file %s: %s", path, err)
	}
	defer f.Close()

	// The lz4 reader consumes concatenated frames transparently.
	zr := lz4.NewReader(f)

	var records []Record
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		if record, ok := ParseLine(scanner.Text()); ok {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil && err != io.ErrUnexpectedEOF {
		return nil, utils.MakeError("couldn't decompress archive file %s: %s", path, err)
	}

	return records, nil
}
