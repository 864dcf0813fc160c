package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logx "siftgram/pkg/logx"
)

// ReadDay returns the entries of one day file. A missing file is empty
// input; a malformed file returns an error the caller may log and skip.
func ReadDay(dir, prefix, date string) ([]Entry, error) {
	return readFile(filePath(dir, prefix, date))
}

func readFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal file: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode journal file %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// CollectWindow concatenates the trailing window of day files ending at
// now, in descending-recency order (today first). Missing files contribute
// nothing; malformed files are logged at warn level and skipped. Never
// fails.
func CollectWindow(dir, prefix string, days int, now time.Time, log logx.Logger) []Entry {
	if days < 1 {
		days = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var out []Entry
	for i := 0; i < days; i++ {
		date := Day(now.AddDate(0, 0, -i))
		entries, err := ReadDay(dir, prefix, date)
		if err != nil {
			log.Warn("skipping unreadable journal file", logx.String("date", date), logx.Err(err))
			continue
		}
		out = append(out, entries...)
	}
	return out
}
