// Package store provides conversation-state storage backends for ScamPipe.
//
// This file holds the row codec shared by the SQL backends. Scalar fields map
// to columns; the intelligence map and transcript are stored as JSON blobs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

const conversationColumns = `conversation_id, turn_count, status, risk_score, low_risk_streak, persona_name, scam_type, intelligence, transcript, created_at, last_activity_at`

// scannable is satisfied by *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanConversation decodes one conversations row into a state record.
func scanConversation(row scannable) (*models.ConversationState, error) {
	var (
		state        models.ConversationState
		status       string
		scamType     string
		intelligence []byte
		transcript   []byte
	)
	err := row.Scan(
		&state.ConversationID, &state.TurnCount, &status, &state.RiskScore,
		&state.LowRiskStreak, &state.PersonaName, &scamType,
		&intelligence, &transcript, &state.CreatedAt, &state.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	state.Status = models.ConversationStatus(status)
	state.ScamType = models.ScamType(scamType)
	if err := json.Unmarshal(intelligence, &state.Intelligence); err != nil {
		return nil, fmt.Errorf("failed to decode intelligence for %s: %w", state.ConversationID, err)
	}
	if state.Intelligence == nil {
		state.Intelligence = make(map[models.ArtifactKind][]string)
	}
	if err := json.Unmarshal(transcript, &state.Transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript for %s: %w", state.ConversationID, err)
	}
	return &state, nil
}

// encodeConversation serializes the JSON columns for an insert or update.
func encodeConversation(state *models.ConversationState) (intelligence, transcript []byte, err error) {
	intel := state.Intelligence
	if intel == nil {
		intel = make(map[models.ArtifactKind][]string)
	}
	intelligence, err = json.Marshal(intel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode intelligence for %s: %w", state.ConversationID, err)
	}
	entries := state.Transcript
	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	transcript, err = json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transcript for %s: %w", state.ConversationID, err)
	}
	return intelligence, transcript, nil
}

// collectConversations drains a result set into state records.
func collectConversations(rows *sql.Rows) ([]*models.ConversationState, error) {
	defer rows.Close()
	var out []*models.ConversationState
	for rows.Next() {
		state, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		out = append(out, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return out, nil
}

// utcNow keeps timestamps uniform across backends.
func utcNow() time.Time { return time.Now().UTC() }
