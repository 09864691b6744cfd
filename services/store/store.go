// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists conversations and their turns in SQLite.
//
// Turn text is sealed by the crypto package before it touches disk, and
// every seal or unseal is recorded in an append-only audit table. Reads
// isolate per-row decryption failures: one corrupt row yields a
// placeholder, not a failed history request.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shrutib31/soul-buddy/services/crypto"
	"github.com/shrutib31/soul-buddy/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/store")

// ErrConversationNotFound is returned when a conversation id has no record.
var ErrConversationNotFound = errors.New("conversation not found")

// Speaker values for stored turns.
const (
	SpeakerUser = "user"
	SpeakerBot  = "bot"
)

// DecryptFailedPlaceholder replaces turn text that could not be unsealed.
const DecryptFailedPlaceholder = "[message unavailable]"

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS conversation_turns (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    turn_index INTEGER NOT NULL,
    speaker TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id, turn_index);

CREATE TABLE IF NOT EXISTS encryption_audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    operation TEXT NOT NULL,
    accessed_by_type TEXT NOT NULL,
    accessed_by_id TEXT NOT NULL,
    accessed_reason TEXT NOT NULL,
    vault_key_name TEXT NOT NULL,
    accessed_at TIMESTAMP NOT NULL
);
`

// Encrypter seals and unseals turn text keyed by conversation id.
// Satisfied by crypto.KeyManager.
type Encrypter interface {
	EncryptMessage(conversationID, plaintext string) (string, error)
	DecryptMessage(conversationID, data string) (string, error)
}

// Conversation is one conversation record.
type Conversation struct {
	ID        string
	UserID    string
	Mode      string
	Domain    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Store persists conversations and encrypted turns in SQLite.
// Safe for concurrent use; SQLite runs in WAL mode with a busy timeout.
type Store struct {
	db        *sql.DB
	encrypter Encrypter
	logger    *slog.Logger
}

// NewStore opens (or creates) the database at dbPath and initializes
// the schema.
func NewStore(dbPath string, encrypter Encrypter, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening conversation database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating conversation schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, encrypter: encrypter, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation record.
func (s *Store) CreateConversation(ctx context.Context, conv Conversation) error {
	ctx, span := tracer.Start(ctx, "store.CreateConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, mode, domain, started_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Mode, conv.Domain, conv.StartedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation loads one conversation by id.
// Returns ErrConversationNotFound if no record exists.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, mode, domain, started_at, ended_at FROM conversations WHERE id = ?`, id)

	var conv Conversation
	var endedAt sql.NullTime
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Mode, &conv.Domain, &conv.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return &conv, nil
}

// BindConversationUser backfills the owning user on an unbound record.
func (s *Store) BindConversationUser(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET user_id = ? WHERE id = ? AND user_id = ''`, userID, id)
	if err != nil {
		return fmt.Errorf("binding conversation user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// EndConversation marks a conversation as ended.
func (s *Store) EndConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET ended_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("ending conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// NextTurnIndex returns the index the next turn in a conversation takes.
func (s *Store) NextTurnIndex(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return count, nil
}

// AppendTurn seals message text and inserts it as the next turn.
// Returns the assigned turn index.
func (s *Store) AppendTurn(ctx context.Context, conversationID, speaker, message string) (int, error) {
	ctx, span := tracer.Start(ctx, "store.AppendTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("turn.speaker", speaker),
	)

	sealed, err := s.encrypter.EncryptMessage(conversationID, message)
	if err != nil {
		return 0, fmt.Errorf("sealing turn: %w", err)
	}

	// The index is assigned inside the insert so concurrent appends to
	// the same conversation cannot race a separate count. The unique
	// index on (conversation_id, turn_index) backstops the invariant.
	var index int
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO conversation_turns (id, conversation_id, turn_index, speaker, message, created_at)
		 VALUES (?, ?, (SELECT COUNT(*) FROM conversation_turns WHERE conversation_id = ?), ?, ?, ?)
		 RETURNING turn_index`,
		uuid.NewString(), conversationID, conversationID, speaker, sealed, time.Now().UTC()).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("inserting turn: %w", err)
	}

	s.audit(ctx, "conversation_turn", "encrypt", "service", "graph", "store turn", conversationID)
	return index, nil
}

// LoadTurns returns all turns of a conversation in order. Rows that fail
// to unseal come back with a placeholder message and a per-row error so
// one corrupt row never hides the rest of the history.
func (s *Store) LoadTurns(ctx context.Context, conversationID string) ([]datatypes.TurnRecord, error) {
	ctx, span := tracer.Start(ctx, "store.LoadTurns")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_index, speaker, message, created_at
		 FROM conversation_turns WHERE conversation_id = ? ORDER BY turn_index ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	defer rows.Close()

	var turns []datatypes.TurnRecord
	for rows.Next() {
		var rec datatypes.TurnRecord
		var sealed string
		if err := rows.Scan(&rec.ID, &rec.TurnIndex, &rec.Speaker, &sealed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}

		plain, err := s.encrypter.DecryptMessage(conversationID, sealed)
		if err != nil {
			s.logger.Warn("turn decryption failed",
				"conversation_id", conversationID,
				"turn_id", rec.ID,
				"error", err)
			rec.Message = DecryptFailedPlaceholder
			rec.Error = "decryption failed"
		} else {
			rec.Message = plain
		}
		turns = append(turns, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	s.audit(ctx, "conversation_turn", "decrypt", "service", "orchestrator", "load history", conversationID)
	return turns, nil
}

// audit records one encryption access. Audit failures are logged, not
// propagated; the primary operation already succeeded.
func (s *Store) audit(ctx context.Context, entityType, operation, byType, byID, reason, conversationID string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO encryption_audit_log
		 (entity_type, operation, accessed_by_type, accessed_by_id, accessed_reason, vault_key_name, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entityType, operation, byType, byID, reason, crypto.VaultKeyName, time.Now().UTC())
	if err != nil {
		s.logger.Warn("audit write failed",
			"conversation_id", conversationID,
			"operation", operation,
			"error", err)
	}
}
