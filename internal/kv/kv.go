// Package kv is the small key-value layer under the run registry. Keys are
// hierarchical segments joined with ':' ("run:<id>").
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path. Segments must not contain ':'.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(separator))
}

// Entry is a key-value pair returned by List and used by BatchSet.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Badger and Memory.
type Store interface {
	// Get returns ErrNotFound if key is not present.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete does not fail for missing keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	// BatchSet stores all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error
	Close() error
}

const separator byte = ':'

func encode(k Key) []byte {
	return []byte(k.String())
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(separator)))
}

// prefixBytes appends the separator so "run" does not match "runs:x".
// An empty prefix matches everything.
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), separator)
}
