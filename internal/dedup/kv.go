package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// KVStore persists records in a NATS JetStream key-value bucket. The bucket
// TTL bounds the session lifetime. Keys are scoped by session id so many
// sessions can share one bucket.
type KVStore struct {
	kv      jetstream.KeyValue
	session string
}

// KVConfig configures a KVStore.
type KVConfig struct {
	Bucket  string
	TTL     time.Duration
	Session string
}

// NewKVStore creates or updates the bucket and returns a store over it.
func NewKVStore(ctx context.Context, nc *nats.Conn, cfg KVConfig) (*KVStore, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("kv bucket is required")
	}
	if cfg.Session == "" {
		return nil, errors.New("kv session is required")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "stackprobe session dedup records",
		TTL:         cfg.TTL,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", cfg.Bucket, err)
	}
	return &KVStore{kv: kv, session: sanitizeKVToken(cfg.Session)}, nil
}

// kvKey maps a record key onto the JetStream key alphabet.
func (s *KVStore) kvKey(key string) string {
	return s.session + "." + sanitizeKVToken(strings.ReplaceAll(key, ":", "."))
}

func sanitizeKVToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '=' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, s.kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return entry.Value(), nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, s.kvKey(key), value); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, s.kvKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}
