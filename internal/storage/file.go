package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "siftgram/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.digests.jsonl (append-only JSON Lines)
//   - <prefix>.days.jsonl    (append-only JSON Lines)
//
// Records are never rewritten; a day closed twice across restarts simply
// appends twice, latest line wins for readers.
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	digestFile *os.File
	dayFile    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	df, err := os.OpenFile(prefix+".digests.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	yf, err := os.OpenFile(prefix+".days.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	return &fileStore{log: log, digestFile: df, dayFile: yf}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.digestFile != nil {
		err1 = s.digestFile.Close()
		s.digestFile = nil
	}
	if s.dayFile != nil {
		err2 = s.dayFile.Close()
		s.dayFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) SaveDigestRun(ctx context.Context, r DigestRun) error {
	_ = ctx
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digestFile == nil {
		return errors.New("digest archive closed")
	}
	return json.NewEncoder(s.digestFile).Encode(r)
}

func (s *fileStore) SaveDaySummary(ctx context.Context, d DaySummary) error {
	_ = ctx
	if d.ClosedAt.IsZero() {
		d.ClosedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dayFile == nil {
		return errors.New("day archive closed")
	}
	return json.NewEncoder(s.dayFile).Encode(d)
}
