// Package store provides conversation-state storage backends for ScamPipe.
//
// Every turn is a read-modify-write against exactly one conversation record.
// The store serializes mutations per conversation id; different conversations
// proceed independently. Backends: in-memory (default), SQLite, PostgreSQL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Mutation is applied to a conversation record inside the store's critical
// section. Returning an error aborts the update; nothing is persisted.
type Mutation func(*models.ConversationState) error

// Store is the conversation state store contract.
type Store interface {
	// GetOrCreate returns the record for id, creating a fresh ACTIVE record
	// when none exists. It never fails on an unknown id.
	GetOrCreate(ctx context.Context, id string) (*models.ConversationState, error)
	// Get returns the record for id or models.ErrConversationNotFound.
	Get(ctx context.Context, id string) (*models.ConversationState, error)
	// Update applies mutate atomically. At most one mutation is in flight
	// per id. Updating a TERMINATED record fails with
	// models.ErrConflictingState and leaves the record untouched.
	Update(ctx context.Context, id string, mutate Mutation) (*models.ConversationState, error)
	// List returns all live records.
	List(ctx context.Context) ([]*models.ConversationState, error)
	// Delete purges the record for id. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error
	// SweepIdle terminates records idle past the window and returns how many
	// were transitioned. Intended for an external scheduler.
	SweepIdle(ctx context.Context, idle time.Duration) (int, error)
	// PurgeTerminated deletes TERMINATED records whose last activity is
	// older than the retention window and returns how many were purged.
	PurgeTerminated(ctx context.Context, retention time.Duration) (int, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	DSN         string
	IdleTimeout time.Duration
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithDSN sets the database connection string. Empty selects the in-memory store.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithIdleTimeout enables lazy idle expiry: records idle past the window are
// transitioned to TERMINATED on next access. Zero disables the check.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// DetectDSNType determines the database type from a DSN string.
// Returns "postgres" for PostgreSQL URLs/key-value DSNs, otherwise "sqlite".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore creates a store backend selected by the configured DSN.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.NewStore: no DSN configured, using in-memory store")
		return NewInMemoryStore(opts...), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// keyedMutex serializes work per conversation id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(id string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// expireIfIdle transitions an overdue record to TERMINATED in place and
// reports whether it did. The caller persists the change.
func expireIfIdle(state *models.ConversationState, idle time.Duration, now time.Time) bool {
	if idle <= 0 || state.Status == models.StatusTerminated {
		return false
	}
	if now.Sub(state.LastActivityAt) <= idle {
		return false
	}
	state.Status = models.StatusTerminated
	return true
}

// InMemoryStore keeps conversation records in a map. It is the default
// backend and the workhorse for tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	records     map[string]*models.ConversationState
	perConv     *keyedMutex
	idleTimeout time.Duration
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &InMemoryStore{
		records:     make(map[string]*models.ConversationState),
		perConv:     newKeyedMutex(),
		idleTimeout: cfg.IdleTimeout,
	}
}

// GetOrCreate returns the record for id, creating it when missing.
func (s *InMemoryStore) GetOrCreate(ctx context.Context, id string) (*models.ConversationState, error) {
	if id == "" {
		return nil, fmt.Errorf("store: empty conversation id: %w", models.ErrInvalidInput)
	}
	lock := s.perConv.lock(id)
	defer lock.Unlock()

	s.mu.Lock()
	state, ok := s.records[id]
	if !ok {
		state = models.NewConversationState(id, time.Now().UTC())
		s.records[id] = state
		slog.Debug("InMemoryStore.GetOrCreate: created conversation", "conversation_id", id)
	}
	expireIfIdle(state, s.idleTimeout, time.Now().UTC())
	out := state.Clone()
	s.mu.Unlock()
	return out, nil
}

// Get returns the record for id or models.ErrConversationNotFound.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConversationNotFound)
	}
	expireIfIdle(state, s.idleTimeout, time.Now().UTC())
	return state.Clone(), nil
}

// Update applies mutate atomically under the per-conversation lock.
func (s *InMemoryStore) Update(ctx context.Context, id string, mutate Mutation) (*models.ConversationState, error) {
	lock := s.perConv.lock(id)
	defer lock.Unlock()

	s.mu.Lock()
	current, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConversationNotFound)
	}
	if current.Status == models.StatusTerminated {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConflictingState)
	}

	// Mutate a copy so a failing mutation never leaves partial changes.
	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[id] = working
	s.mu.Unlock()
	slog.Debug("InMemoryStore.Update: conversation updated", "conversation_id", id, "turn_count", working.TurnCount, "status", working.Status)
	return working.Clone(), nil
}

// List returns all live records sorted by creation time.
func (s *InMemoryStore) List(ctx context.Context) ([]*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ConversationState, 0, len(s.records))
	for _, state := range s.records {
		out = append(out, state.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete purges the record for id.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// SweepIdle terminates records idle past the window.
func (s *InMemoryStore) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, state := range s.records {
		if expireIfIdle(state, idle, now) {
			count++
		}
	}
	if count > 0 {
		slog.Info("InMemoryStore.SweepIdle: idle conversations terminated", "count", count)
	}
	return count, nil
}

// PurgeTerminated deletes TERMINATED records past the retention window.
func (s *InMemoryStore) PurgeTerminated(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, state := range s.records {
		if state.Status == models.StatusTerminated && state.LastActivityAt.Before(cutoff) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
