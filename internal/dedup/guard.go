// Package dedup gates detection to at most once per session.
//
// The Guard keeps an authoritative in-memory flag and an advisory persisted
// record. The persisted tier is allowed to fail at any time: read failures
// mean "proceed with detection" and write failures leave the in-memory flag
// as the only guard for the rest of the process.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
	"github.com/fyrsmithlabs/stackprobe/internal/scoring"
)

// DefaultKey is the persisted record key. The suffix versions the record
// format.
const DefaultKey = "stackprobe:detection:v1"

// Record is the persisted session record.
type Record struct {
	DetectedAt string `json:"detected_at"`
	TraitsHash string `json:"traits_hash"`
}

func (r Record) valid() bool {
	if r.TraitsHash == "" {
		return false
	}
	_, err := time.Parse(time.RFC3339, r.DetectedAt)
	return err == nil
}

// ErrorRecorder counts swallowed persistence failures.
type ErrorRecorder interface {
	RecordPersistenceError(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPersistenceError(string) {}

// Guard is the two-tier session gate. It is safe for concurrent use.
type Guard struct {
	store    Store
	key      string
	logger   *logging.Logger
	recorder ErrorRecorder
	now      func() time.Time

	mu        sync.Mutex
	completed bool
	bypass    bool
	hash      string
}

// Option configures a Guard.
type Option func(*Guard)

// WithKey overrides the persisted record key.
func WithKey(key string) Option {
	return func(g *Guard) {
		if key != "" {
			g.key = key
		}
	}
}

// WithLogger sets the guard logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithErrorRecorder sets the persistence failure counter.
func WithErrorRecorder(r ErrorRecorder) Option {
	return func(g *Guard) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithClock overrides the time source for detected_at.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard creates a guard. A nil store keeps state in memory only.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:    store,
		key:      DefaultKey,
		logger:   logging.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldSkip reports whether detection already completed this session.
//
// The in-memory flag answers first. Otherwise a well-formed persisted record
// means skip, and its hash is cached for later novelty checks. After
// AllowNext, the next call proceeds regardless of the persisted record.
func (g *Guard) ShouldSkip(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed {
		return true
	}

	rec, ok := g.load(ctx)
	if ok && g.hash == "" {
		g.hash = rec.TraitsHash
	}

	if g.bypass {
		g.bypass = false
		return false
	}
	return ok
}

// Completed reports whether ShouldSkip would skip right now. Unlike
// ShouldSkip it leaves a pending AllowNext armed. A persisted hash is still
// cached.
func (g *Guard) Completed(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed {
		return true
	}
	if g.bypass {
		return false
	}
	rec, ok := g.load(ctx)
	if ok && g.hash == "" {
		g.hash = rec.TraitsHash
	}
	return ok
}

// MarkComplete records a finished detection. Persistence is best effort.
func (g *Guard) MarkComplete(ctx context.Context, traits scoring.Traits) {
	hash := Hash(traits)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.completed = true
	g.bypass = false
	g.hash = hash

	rec := Record{
		DetectedAt: g.now().UTC().Format(time.RFC3339),
		TraitsHash: hash,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		g.swallow(ctx, "marshal", err)
		return
	}
	g.safely(ctx, "set", func() error {
		return g.store.Set(ctx, g.key, data)
	})
}

// HasTraitsChanged reports whether traits differ from the cached hash.
// With nothing cached there is nothing to compare against, so it is true.
func (g *Guard) HasTraitsChanged(traits scoring.Traits) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hash == "" || g.hash != Hash(traits)
}

// Reset clears the memory flag, cached hash and persisted record.
func (g *Guard) Reset(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.completed = false
	g.bypass = false
	g.hash = ""
	g.safely(ctx, "delete", func() error {
		return g.store.Delete(ctx, g.key)
	})
}

// AllowNext clears only the memory flag so the next detection runs. The
// cached hash is kept for HasTraitsChanged.
func (g *Guard) AllowNext() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = false
	g.bypass = true
}

// CachedHash returns the hash of the last completed detection, if known.
func (g *Guard) CachedHash() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hash
}

// load reads the persisted record. Caller holds g.mu.
func (g *Guard) load(ctx context.Context) (Record, bool) {
	var data []byte
	g.safely(ctx, "get", func() error {
		var err error
		data, err = g.store.Get(ctx, g.key)
		if errors.Is(err, ErrNotFound) {
			data = nil
			return nil
		}
		return err
	})
	if len(data) == 0 {
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		g.swallow(ctx, "decode", err)
		return Record{}, false
	}
	if !rec.valid() {
		g.swallow(ctx, "decode", fmt.Errorf("malformed record under %s", g.key))
		return Record{}, false
	}
	return rec, true
}

// safely runs a store operation, converting errors and panics into a debug
// log. Caller holds g.mu.
func (g *Guard) safely(ctx context.Context, op string, fn func() error) {
	if g.store == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.swallow(ctx, op, fmt.Errorf("store panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		g.swallow(ctx, op, err)
	}
}

func (g *Guard) swallow(ctx context.Context, op string, err error) {
	g.recorder.RecordPersistenceError(op)
	g.logger.Debug(ctx, "session persistence failed",
		zap.String("op", op),
		zap.String("key", g.key),
		zap.Error(err))
}
