// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/hiverag/internal/errs"
)

// Conversation groups a sequence of query turns for one owner (§3), giving
// the planner prior-turn context when a query references earlier results.
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole distinguishes the user's turn from the engine's answer.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn in a Conversation. ProcessLogID links an assistant
// message back to the audit trail that produced it (§4.11/§4.12).
type Message struct {
	ID               string
	ConversationID   string
	Role             MessageRole
	Content          string
	ProcessLogID     string
	CreatedAt        time.Time
}

type ConversationStore struct {
	db *sql.DB
}

func newConversationStore(db *sql.DB) (*ConversationStore, error) {
	s := &ConversationStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("store: init conversations schema: %w", err)
	}
	return s, nil
}

func (s *ConversationStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		process_log_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at ASC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *ConversationStore) Create(ctx context.Context, c *Conversation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, owner_id, title) VALUES (?, ?, ?)", c.ID, c.OwnerID, c.Title)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.conversations", err, "create conversation")
	}
	return nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, title, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFoundf("store.conversations", "conversation not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.conversations", err, "get conversation")
	}
	return &c, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, m *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, process_log_id)
		VALUES (?, ?, ?, ?, ?)`, m.ID, m.ConversationID, string(m.Role), m.Content, m.ProcessLogID)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.conversations", err, "append message")
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", m.ConversationID)
	if err != nil {
		return errs.Wrap(errs.Transient, "store.conversations", err, "touch conversation")
	}
	return nil
}

// History returns a conversation's turns in chronological order, used to
// give the planner prior-turn context.
func (s *ConversationStore) History(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, process_log_id, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store.conversations", err, "list history")
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.ProcessLogID, &m.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.Transient, "store.conversations", err, "scan message")
		}
		m.Role = MessageRole(role)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
