package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DigestRun records one digest generation.
// Keep it compact and schema-stable.
type DigestRun struct {
	At         time.Time `json:"at"`
	Date       string    `json:"date"`
	Mode       string    `json:"mode"`
	WindowDays int       `json:"window_days"`
	Messages   int       `json:"messages"`
	Fallback   bool      `json:"fallback"`
	ReportPath string    `json:"report_path,omitempty"`
}

// DaySummary records the ingestion counters of one closed day.
type DaySummary struct {
	Date     string    `json:"date"`
	Accepted int       `json:"accepted"`
	Filtered int       `json:"filtered"`
	Skipped  int       `json:"skipped"`
	ClosedAt time.Time `json:"closed_at"`
}
