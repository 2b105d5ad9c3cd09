package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pion/logging"
)

// encMode uses Core Deterministic Encoding so an unchanged store always
// serializes to the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
}

// FileStore is a Store persisted as a single CBOR document. Every mutation
// rewrites the file through a temporary file and a rename, so a crash leaves
// either the old or the new contents.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	data   map[string]map[string][]byte
	closed bool
	log    logging.LeveledLogger
}

// OpenFileStore loads path, creating an empty store when it does not exist.
// A nil loggerFactory disables logging.
func OpenFileStore(path string, loggerFactory logging.LoggerFactory) (*FileStore, error) {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	f := &FileStore{
		path: path,
		data: make(map[string]map[string][]byte),
		log:  loggerFactory.NewLogger("storage"),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.log.Infof("creating store at %s", path)
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := cbor.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", path, err)
		}
	}
	if f.data == nil {
		f.data = make(map[string]map[string][]byte)
	}
	f.log.Debugf("loaded %d namespaces from %s", len(f.data), path)
	return f, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Get implements Store.
func (f *FileStore) Get(ns, key string) ([]byte, error) {
	if err := validKey(ns, key); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	v, ok := f.data[ns][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set implements Store.
func (f *FileStore) Set(ns, key string, val []byte) error {
	if err := validKey(ns, key); err != nil {
		return err
	}
	return f.mutate(func() {
		bucket := f.data[ns]
		if bucket == nil {
			bucket = make(map[string][]byte)
			f.data[ns] = bucket
		}
		bucket[key] = clone(val)
	})
}

// Delete implements Store.
func (f *FileStore) Delete(ns, key string) error {
	if err := validKey(ns, key); err != nil {
		return err
	}
	return f.mutate(func() {
		if bucket, ok := f.data[ns]; ok {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(f.data, ns)
			}
		}
	})
}

// EraseNamespace implements Store.
func (f *FileStore) EraseNamespace(ns string) error {
	return f.mutate(func() { delete(f.data, ns) })
}

// EraseAll implements Store.
func (f *FileStore) EraseAll() error {
	return f.mutate(func() { f.data = make(map[string]map[string][]byte) })
}

// Namespaces implements Store.
func (f *FileStore) Namespaces() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	return sortedKeys(f.data), nil
}

// Close marks the store closed. Later calls return ErrClosed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *FileStore) mutate(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	fn()
	return f.flushLocked()
}

func (f *FileStore) flushLocked() error {
	raw, err := encMode.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
