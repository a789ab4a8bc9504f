// Package kv provides the ordered key/value stores the ledger persists into.
package kv

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: not found")

// IsNotFound reports whether err indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Getter wraps methods for reading kvs.
type Getter interface {
	// Get value for given key.
	// An error returned if key not found. It can be checked via IsNotFound.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// Iterate visits every key with the given prefix in ascending order
	// until fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Putter wraps methods for writing kvs.
type Putter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batch collects writes that are applied together by Write.
type Batch interface {
	Putter

	Len() int
	Write() error
}

// Store is a persistent ordered key/value store.
type Store interface {
	Getter
	Putter

	NewBatch() Batch
	Close() error
}
