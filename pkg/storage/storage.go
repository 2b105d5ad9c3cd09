// Package storage provides the namespaced key/value store that backs
// persistent node state: nonvolatile attribute values, the minimum unused
// endpoint id and anything else an application wants to survive a restart.
//
// The model follows NVS on ESP32: values are opaque byte strings grouped by
// namespace, and a factory reset erases every namespace.
package storage

import "errors"

// MaxKeyLength is the longest key accepted by NVS. Longer keys are truncated
// by KeyFor callers before they reach the store.
const MaxKeyLength = 15

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage: key not found")

	// ErrInvalidKey is returned for empty namespaces or keys.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: closed")
)

// Store abstracts persistent storage.
//
// All methods must be safe for concurrent use.
type Store interface {
	// Get returns a copy of the value stored under ns/key.
	Get(ns, key string) ([]byte, error)

	// Set stores a copy of val under ns/key.
	Set(ns, key string, val []byte) error

	// Delete removes ns/key. Deleting an absent key is not an error.
	Delete(ns, key string) error

	// EraseNamespace removes every key of ns.
	EraseNamespace(ns string) error

	// EraseAll removes every namespace.
	EraseAll() error

	// Namespaces lists the namespaces that currently hold keys, sorted.
	Namespaces() ([]string, error)
}

func validKey(ns, key string) error {
	if ns == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
