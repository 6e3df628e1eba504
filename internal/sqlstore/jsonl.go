package sqlstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxSnapshotLine bounds one JSONL row; rows carry whole JSON field values.
const maxSnapshotLine = 16 << 20

// readJSONL returns the well-formed JSON lines of path and the number of
// malformed lines it dropped. Blank lines are neither. A missing file is an
// empty snapshot table.
func readJSONL(path string) (records []json.RawMessage, malformed int, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), maxSnapshotLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		switch {
		case len(line) == 0:
		case json.Valid(line):
			records = append(records, json.RawMessage(bytes.Clone(line)))
		default:
			malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, malformed, nil
}

// writeJSONL replaces path with records, one per line. The rows go to a
// synced temp file in the same directory which is then renamed over path,
// so readers see either the old table or the new one.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for i, rec := range records {
		if _, err = w.Write(rec); err == nil {
			err = w.WriteByte('\n')
		}
		if err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
