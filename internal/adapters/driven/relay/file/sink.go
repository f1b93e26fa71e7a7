// Package file writes relay events as JSON documents into a watched folder.
//
// Each event becomes one file named after its millisecond timestamp. An
// observer process picks files up as they land (see the relay watch command).
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.RelaySink = (*Sink)(nil)

// Extension is the suffix of every event file.
const Extension = ".json"

// tempPattern names in-flight fallback files. Observers ignore them.
const tempPattern = ".relay-*.tmp"

// Sink persists relay events to a directory.
type Sink struct {
	dir string

	// mu serialises name allocation so concurrent emits never collide.
	mu sync.Mutex

	now    func() time.Time
	write  func(path string, data []byte) error
	rename func(from, to string) error
}

// NewSink creates a sink writing into dir. The directory is created on
// first emit.
func NewSink(dir string) *Sink {
	return &Sink{
		dir:    dir,
		now:    time.Now,
		write:  writeExclusive,
		rename: os.Rename,
	}
}

// Dir returns the relay directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Emit writes the event and returns the file path.
//
// A failed primary write is retried once through a temp file that is
// renamed into place. When both fail the error wraps domain.ErrRelay.
func (s *Sink) Emit(ctx context.Context, event domain.RelayEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("%w: encode event: %w", domain.ErrRelay, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create relay dir: %w", domain.ErrRelay, err)
	}

	stamp := event.Time
	if stamp.IsZero() {
		stamp = s.now()
	}
	path := s.allocate(stamp.UnixMilli())

	primaryErr := s.write(path, data)
	if primaryErr == nil {
		return path, nil
	}

	if fallbackErr := s.writeViaTemp(path, data); fallbackErr != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrRelay, filepath.Base(path),
			errors.Join(primaryErr, fmt.Errorf("fallback: %w", fallbackErr)))
	}
	return path, nil
}

// allocate returns the first free name for the timestamp: <ms>.json,
// then <ms>-1.json, <ms>-2.json and so on.
func (s *Sink) allocate(ms int64) string {
	base := strconv.FormatInt(ms, 10)
	path := filepath.Join(s.dir, base+Extension)
	for n := 1; exists(path); n++ {
		path = filepath.Join(s.dir, base+"-"+strconv.Itoa(n)+Extension)
	}
	return path
}

func (s *Sink) writeViaTemp(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := s.rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move temp: %w", err)
	}
	return nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsEventFile reports whether name is a finished event file.
func IsEventFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, Extension) && !strings.HasPrefix(base, ".")
}

// ReadEvent decodes an event file.
func ReadEvent(path string) (domain.RelayEvent, error) {
	var event domain.RelayEvent
	data, err := os.ReadFile(path)
	if err != nil {
		return event, fmt.Errorf("reading event: %w", err)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decoding event %s: %w", filepath.Base(path), err)
	}
	return event, nil
}
