// Package journal persists accepted events to date-partitioned JSON files.
//
// Each day's file <prefix>-<YYYY-MM-DD>.json holds one pretty-printed JSON
// array, so the files stay directly readable with standard tools.
package journal

import (
	"path/filepath"
	"time"
)

// DateLayout names journal files; file dates are UTC.
const DateLayout = "2006-01-02"

const DefaultPrefix = "messages"

// Entry is one accepted event.
type Entry struct {
	Timestamp  string `json:"timestamp"` // receipt time, RFC 3339
	MessageID  int    `json:"message_id"`
	ChatID     int64  `json:"chat_id"`
	ChatTitle  string `json:"chat_title"`
	ChatType   string `json:"chat_type"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	EventDate  int64  `json:"event_date"` // platform send time, epoch seconds
	FromSelf   bool   `json:"is_from_self"`
	Mention    bool   `json:"is_mention"`
	FilterMode string `json:"filter_mode"`
}

// Day returns the UTC journal date for ts.
func Day(ts time.Time) string { return ts.UTC().Format(DateLayout) }

func filePath(dir, prefix, date string) string {
	return filepath.Join(dir, prefix+"-"+date+".json")
}
