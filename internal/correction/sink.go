// Package correction persists human-submitted translation corrections.
// The store is append-only; concurrent writers are serialized and failed
// writes are retried a bounded number of times before surfacing.
package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrWriteFailed indicates the store rejected the entry after exhausting the
// bounded retries.
var ErrWriteFailed = errors.New("correction store write failed")

// Entry is one submitted correction.
type Entry struct {
	Timestamp            time.Time `json:"timestamp"`
	RequestText          string    `json:"request_text"`
	OriginalTranslation  string    `json:"original_translation"`
	CorrectedTranslation string    `json:"corrected_translation"`
}

// Sink appends correction entries to durable storage.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// FileSink appends JSONL entries to a single file. A mutex serializes
// writers; each append is retried up to MaxRetries times with a short
// backoff before reporting failure. It never blocks indefinitely.
type FileSink struct {
	path       string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

// NewFileSink builds a file-backed sink, creating the parent directory if
// needed.
func NewFileSink(path string, maxRetries int, backoff time.Duration, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create correction dir: %w", err)
	}
	return &FileSink{path: path, maxRetries: maxRetries, backoff: backoff, logger: logger}, nil
}

// Append writes one entry as a JSON line.
func (s *FileSink) Append(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode correction: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = s.writeLine(line); lastErr == nil {
			return nil
		}
		s.logger.Warn("correction write failed",
			"attempt", attempt,
			"error", lastErr)
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrWriteFailed, lastErr)
}

func (s *FileSink) writeLine(line []byte) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}
