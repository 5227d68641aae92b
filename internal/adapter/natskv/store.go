// Package natskv implements the memory store port using NATS JetStream KV.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/revloop/overseer/internal/domain"
)

// Store wraps a NATS JetStream KeyValue bucket as the external memory store.
type Store struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed memory store.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// encodeKey maps the {domain}:{entity}:{id} convention onto the NATS KV
// character set, where ':' is not a legal key character.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func decodeKey(key string) string {
	return strings.ReplaceAll(key, ".", ":")
}

// Store writes a value under the given key.
func (s *Store) Store(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Retrieve reads the value stored under key.
func (s *Store) Retrieve(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

// List returns the stored keys matching the given prefix pattern.
func (s *Store) List(ctx context.Context, pattern string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list: %w", err)
	}

	prefix := encodeKey(pattern)
	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, decodeKey(key))
		}
	}
	return keys, nil
}
