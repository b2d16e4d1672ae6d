// Package store provides conversation-state storage backends for ScamPipe.
//
// This file implements the PostgreSQL-backed conversation store. Per-id
// serialization uses SELECT ... FOR UPDATE so concurrent engine instances
// sharing the database cannot lose turns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ScamPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation state in PostgreSQL.
type PostgresStore struct {
	db          *sql.DB
	idleTimeout time.Duration
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore: migrations applied")

	return &PostgresStore{db: db, idleTimeout: cfg.IdleTimeout}, nil
}

func (s *PostgresStore) getRow(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string, forUpdate bool) (*models.ConversationState, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE conversation_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	state, err := scanConversation(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConversationNotFound)
	}
	return state, err
}

// GetOrCreate returns the record for id, inserting a fresh ACTIVE record when
// missing. The insert uses ON CONFLICT DO NOTHING so concurrent first turns race safely.
func (s *PostgresStore) GetOrCreate(ctx context.Context, id string) (*models.ConversationState, error) {
	if id == "" {
		return nil, fmt.Errorf("store: empty conversation id: %w", models.ErrInvalidInput)
	}
	state := models.NewConversationState(id, utcNow())
	intelligence, transcript, err := encodeConversation(state)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (conversation_id) DO NOTHING`,
		state.ConversationID, state.TurnCount, string(state.Status), state.RiskScore,
		state.LowRiskStreak, state.PersonaName, string(state.ScamType),
		intelligence, transcript, state.CreatedAt, state.LastActivityAt)
	if err != nil {
		slog.Error("PostgresStore.GetOrCreate: insert failed", "error", err, "conversation_id", id)
		return nil, fmt.Errorf("failed to insert conversation %s: %w", id, err)
	}
	stored, err := s.getRow(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, stored)
}

func (s *PostgresStore) lazyExpire(ctx context.Context, state *models.ConversationState) (*models.ConversationState, error) {
	if !expireIfIdle(state, s.idleTimeout, utcNow()) {
		return state, nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = $1 WHERE conversation_id = $2`,
		string(models.StatusTerminated), state.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to expire conversation %s: %w", state.ConversationID, err)
	}
	slog.Info("PostgresStore: idle conversation terminated", "conversation_id", state.ConversationID)
	return state, nil
}

// Get returns the record for id or models.ErrConversationNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ConversationState, error) {
	state, err := s.getRow(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, state)
}

// Update applies mutate inside a transaction holding a row lock on the record.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate Mutation) (*models.ConversationState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := s.getRow(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if state.Status == models.StatusTerminated {
		return nil, fmt.Errorf("store: %q: %w", id, models.ErrConflictingState)
	}
	if err := mutate(state); err != nil {
		return nil, err
	}
	intelligence, transcript, err := encodeConversation(state)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET turn_count = $1, status = $2, risk_score = $3, low_risk_streak = $4, persona_name = $5, scam_type = $6, intelligence = $7, transcript = $8, last_activity_at = $9 WHERE conversation_id = $10`,
		state.TurnCount, string(state.Status), state.RiskScore, state.LowRiskStreak,
		state.PersonaName, string(state.ScamType), intelligence, transcript,
		state.LastActivityAt, state.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation update: %w", err)
	}
	slog.Debug("PostgresStore.Update: conversation updated", "conversation_id", id, "turn_count", state.TurnCount, "status", state.Status)
	return state, nil
}

// List returns all records ordered by creation time.
func (s *PostgresStore) List(ctx context.Context) ([]*models.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return collectConversations(rows)
}

// Delete purges the record for id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

// SweepIdle terminates records idle past the window.
func (s *PostgresStore) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := utcNow().Add(-idle)
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = $1 WHERE status != $1 AND last_activity_at < $2`,
		string(models.StatusTerminated), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idle conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.SweepIdle: idle conversations terminated", "count", n)
	}
	return int(n), nil
}

// PurgeTerminated deletes TERMINATED records past the retention window.
func (s *PostgresStore) PurgeTerminated(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := utcNow().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE status = $1 AND last_activity_at < $2`,
		string(models.StatusTerminated), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminated conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }
