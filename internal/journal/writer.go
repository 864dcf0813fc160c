package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Writer appends entries to day files. It is safe for concurrent use; the
// digest reader may scan a file while the pipeline appends to it, and the
// temp-file-and-rename rewrite keeps every observed file complete.
type Writer struct {
	dir    string
	prefix string

	mu sync.Mutex
}

func NewWriter(dir, prefix string) *Writer {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}
	return &Writer{dir: dir, prefix: prefix}
}

// FilePath returns the day file for date (a DateLayout string).
func (w *Writer) FilePath(date string) string {
	return filePath(w.dir, w.prefix, date)
}

// Append adds e to the day file for date, creating directory and file as
// needed. A malformed existing file is moved aside to <name>.corrupt and
// the day starts fresh.
func (w *Writer) Append(date string, e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	path := w.FilePath(date)
	entries, err := readFile(path)
	if err != nil {
		_ = os.Rename(path, path+".corrupt")
		entries = nil
	}
	entries = append(entries, e)

	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal entries: %w", err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open journal temp file: %w", err)
	}
	_, werr := f.Write(b)
	_ = f.Sync()
	cerr := f.Close()
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write journal temp file: %w", werr)
	}
	if cerr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close journal temp file: %w", cerr)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace journal file: %w", err)
	}
	return nil
}
