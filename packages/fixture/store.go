package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store reads and writes fixtures. Every write lands through a temporary file
// and a rename in the target directory, so readers never see partial files.
type Store struct {
	touchHits func() bool
}

// writeMu keeps a body and its metadata, or a restore and its ownership check,
// from interleaving with another write in the same process.
var writeMu sync.Mutex

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTouchHits sets the function consulted by MarkHit.
func WithTouchHits(fn func() bool) StoreOption {
	return func(s *Store) {
		s.touchHits = fn
	}
}

// NewStore creates a fixture store. Hits are touched unless configured
// otherwise.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{touchHits: func() bool { return true }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether the fixture's metadata file is present.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path + HeadersExt)
	return err == nil && !info.IsDir()
}

// ReadHeaders loads the fixture metadata.
func (s *Store) ReadHeaders(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path + HeadersExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, fmt.Errorf("%w: %s", ErrFixtureMissing, path)
		}
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: %s%s: %v", ErrMalformedFixture, path, HeadersExt, err)
	}
	return meta, nil
}

// ReadBody loads the recorded response body.
func (s *Store) ReadBody(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: body missing", ErrMalformedFixture, path)
		}
		return nil, err
	}
	return data, nil
}

// WriteFixture stores a response. The body is written first; the metadata
// file marks the fixture as present.
func (s *Store) WriteFixture(path string, meta Metadata, body []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := writeFileAtomic(path, body); err != nil {
		return fmt.Errorf("failed to write fixture body: %w", err)
	}
	return writeHeaders(path, meta)
}

// WriteHeaders stores metadata alone, as done for sentinels.
func (s *Store) WriteHeaders(path string, meta Metadata) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	return writeHeaders(path, meta)
}

func writeHeaders(path string, meta Metadata) error {
	if err := writeJSON(path+HeadersExt, meta); err != nil {
		return fmt.Errorf("failed to write fixture metadata: %w", err)
	}
	return nil
}

// Snapshot captures the current metadata file and returns a function that
// puts it back, or removes the file if there was none. The returned function
// only acts while the file still holds the placeholder written by owner; once
// another recording has replaced it, restoring is a no-op.
func (s *Store) Snapshot(path, owner string) (func() error, error) {
	file := path + HeadersExt
	previous, err := os.ReadFile(file)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	existed := err == nil
	return func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if !ownsPlaceholder(file, owner) {
			return nil
		}
		if !existed {
			return removeIfExists(file)
		}
		return writeFileAtomic(file, previous)
	}, nil
}

func ownsPlaceholder(file, owner string) bool {
	data, err := os.ReadFile(file)
	if err != nil {
		return false
	}
	var current Metadata
	if err := json.Unmarshal(data, &current); err != nil {
		return false
	}
	return current.Timeout && current.RecordingID == owner
}

// MarkHit sets the access and modification times of the metadata file to
// now. Missing fixtures are ignored.
func (s *Store) MarkHit(path string) error {
	if !s.touchHits() {
		return nil
	}
	now := time.Now()
	if err := os.Chtimes(path+HeadersExt, now, now); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// WriteMissing stores the descriptor of a request that had no fixture and
// returns the file written.
func (s *Store) WriteMissing(path string, desc Descriptor) (string, error) {
	file := path + MissingExt
	if err := writeJSON(file, desc); err != nil {
		return "", fmt.Errorf("failed to write missing descriptor: %w", err)
	}
	return file, nil
}

// WriteRequest stores the descriptor of a recorded request.
func (s *Store) WriteRequest(path string, desc Descriptor) error {
	if err := writeJSON(path+RequestExt, desc); err != nil {
		return fmt.Errorf("failed to write request descriptor: %w", err)
	}
	return nil
}

// ReadDescriptor loads a ".request" or ".missing" file.
func ReadDescriptor(file string) (Descriptor, error) {
	var desc Descriptor
	data, err := os.ReadFile(file)
	if err != nil {
		return desc, err
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("%w: %s: %v", ErrMalformedFixture, file, err)
	}
	return desc, nil
}

func writeJSON(file string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(file, data)
}

func writeFileAtomic(file string, data []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, "."+filepath.Base(file)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, file); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
