// Package store provides conversation-state storage backends for ScamPipe.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ScamPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation state in a local SQLite file. Per-id
// serialization is enforced with an in-process keyed mutex; SQLite allows a
// single writer anyway.
type SQLiteStore struct {
	db          *sql.DB
	perConv     *keyedMutex
	idleTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; missing directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore: migrations applied")

	return &SQLiteStore{db: db, perConv: newKeyedMutex(), idleTimeout: cfg.IdleTimeout}, nil
}

func (s *SQLiteStore) getRow(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) (*models.ConversationState, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, id)
	state, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConversationNotFound)
	}
	return state, err
}

func (s *SQLiteStore) writeRow(ctx context.Context, tx *sql.Tx, state *models.ConversationState) error {
	intelligence, transcript, err := encodeConversation(state)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET turn_count = ?, status = ?, risk_score = ?, low_risk_streak = ?, persona_name = ?, scam_type = ?, intelligence = ?, transcript = ?, last_activity_at = ? WHERE conversation_id = ?`,
		state.TurnCount, string(state.Status), state.RiskScore, state.LowRiskStreak,
		state.PersonaName, string(state.ScamType), intelligence, transcript,
		state.LastActivityAt, state.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", state.ConversationID, err)
	}
	return nil
}

// GetOrCreate returns the record for id, inserting a fresh ACTIVE record when missing.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (*models.ConversationState, error) {
	if id == "" {
		return nil, fmt.Errorf("store: empty conversation id: %w", models.ErrInvalidInput)
	}
	lock := s.perConv.lock(id)
	defer lock.Unlock()

	state, err := s.getRow(ctx, s.db, id)
	if err == nil {
		return s.lazyExpire(ctx, state)
	}
	if !errors.Is(err, models.ErrConversationNotFound) {
		return nil, err
	}

	state = models.NewConversationState(id, utcNow())
	intelligence, transcript, err := encodeConversation(state)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.ConversationID, state.TurnCount, string(state.Status), state.RiskScore,
		state.LowRiskStreak, state.PersonaName, string(state.ScamType),
		intelligence, transcript, state.CreatedAt, state.LastActivityAt)
	if err != nil {
		slog.Error("SQLiteStore.GetOrCreate: insert failed", "error", err, "conversation_id", id)
		return nil, fmt.Errorf("failed to insert conversation %s: %w", id, err)
	}
	slog.Debug("SQLiteStore.GetOrCreate: created conversation", "conversation_id", id)
	return state, nil
}

// lazyExpire persists an idle-timeout termination noticed on read.
func (s *SQLiteStore) lazyExpire(ctx context.Context, state *models.ConversationState) (*models.ConversationState, error) {
	if !expireIfIdle(state, s.idleTimeout, utcNow()) {
		return state, nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = ? WHERE conversation_id = ?`,
		string(models.StatusTerminated), state.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to expire conversation %s: %w", state.ConversationID, err)
	}
	slog.Info("SQLiteStore: idle conversation terminated", "conversation_id", state.ConversationID)
	return state, nil
}

// Get returns the record for id or models.ErrConversationNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ConversationState, error) {
	state, err := s.getRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, state)
}

// Update applies mutate inside a transaction under the per-conversation lock.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate Mutation) (*models.ConversationState, error) {
	lock := s.perConv.lock(id)
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := s.getRow(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if state.Status == models.StatusTerminated {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConflictingState)
	}
	if err := mutate(state); err != nil {
		return nil, err
	}
	if err := s.writeRow(ctx, tx, state); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation update: %w", err)
	}
	slog.Debug("SQLiteStore.Update: conversation updated", "conversation_id", id, "turn_count", state.TurnCount, "status", state.Status)
	return state, nil
}

// List returns all records ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return collectConversations(rows)
}

// Delete purges the record for id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// SweepIdle terminates records idle past the window.
func (s *SQLiteStore) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := utcNow().Add(-idle)
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = ? WHERE status != ? AND last_activity_at < ?`,
		string(models.StatusTerminated), string(models.StatusTerminated), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idle conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.SweepIdle: idle conversations terminated", "count", n)
	}
	return int(n), nil
}

// PurgeTerminated deletes TERMINATED records past the retention window.
func (s *SQLiteStore) PurgeTerminated(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := utcNow().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE status = ? AND last_activity_at < ?`,
		string(models.StatusTerminated), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminated conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
