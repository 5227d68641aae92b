// Package memorystore defines the key/value memory store port used for the
// audit trail, status snapshots, and learning records.
package memorystore

import (
	"context"
	"strings"
)

// Store is the port interface for the external key/value memory store.
// Keys follow the convention {domain}:{entity-type}:{id-or-timestamp}.
type Store interface {
	// Store writes a value under the given key, overwriting any prior value.
	Store(ctx context.Context, key string, value []byte) error

	// Retrieve reads the value stored under key.
	// Returns domain.ErrNotFound if the key does not exist.
	Retrieve(ctx context.Context, key string) ([]byte, error)

	// List returns the keys matching the given prefix pattern
	// (e.g. "hitl:decision:" matches every decision record).
	List(ctx context.Context, pattern string) ([]string, error)
}

// Key builds a memory store key from its convention parts.
func Key(domain, entity, id string) string {
	return strings.Join([]string{domain, entity, id}, ":")
}
