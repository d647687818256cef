// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so conversation deletion cascades to messages
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			name       TEXT NOT NULL,
			pin_order  INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			UNIQUE(owner_id, name)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
			ON conversations(owner_id);

		-- seq carries insertion order; iteration order for history is
		-- append order, never a recomputed sort key
		CREATE TABLE IF NOT EXISTS messages (
			seq               INTEGER PRIMARY KEY AUTOINCREMENT,
			id                TEXT NOT NULL,
			conversation_id   TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role              TEXT NOT NULL,
			content           TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			updated_at        TEXT,
			updated_by        TEXT,
			feedback_received INTEGER NOT NULL DEFAULT 0,

			UNIQUE(conversation_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateConversation inserts a conversation and its initial messages in one
// transaction: either the conversation plus the full initial sequence becomes
// visible, or nothing does. Returns ErrConflict if the owner already has a
// conversation with this name.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, initial []*Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, name, pin_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		conv.ID,
		conv.OwnerID,
		conv.Name,
		nullInt(conv.PinOrder),
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, msg := range initial {
		if err := insertMessageTx(ctx, tx, conv.ID, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"owner", conv.OwnerID,
		"name", conv.Name,
		"initial_messages", len(initial))
	return nil
}

// insertMessageTx inserts one message row inside an open transaction
func insertMessageTx(ctx context.Context, tx *sql.Tx, conversationID string, msg *Message) error {
	var updatedAt, updatedBy any
	if msg.UpdatedAt != nil {
		updatedAt = msg.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if msg.UpdatedBy != nil {
		updatedBy = *msg.UpdatedBy
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at, updated_at, updated_by, feedback_received)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		conversationID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.UTC().Format(time.RFC3339),
		updatedAt,
		updatedBy,
		boolToInt(msg.FeedbackReceived),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// nullInt returns nil for a nil pointer, otherwise the dereferenced value
func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, pin_order, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id)
	return scanConversation(row)
}

// GetConversationByName retrieves a conversation by owner and name.
// Returns ErrNotFound if no such conversation exists for the owner.
func (s *SQLiteStore) GetConversationByName(ctx context.Context, ownerID, name string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, pin_order, created_at, updated_at
		FROM conversations
		WHERE owner_id = ? AND name = ?
	`, ownerID, name)
	return scanConversation(row)
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var pinOrder sql.NullInt64
	var createdAtStr, updatedAtStr string

	err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Name, &pinOrder, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if pinOrder.Valid {
		v := int(pinOrder.Int64)
		conv.PinOrder = &v
	}

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// RenameConversation changes a conversation's name and bumps updated_at.
// Returns ErrConflict if the owner already has a conversation named newName,
// and ErrNotFound if the conversation doesn't exist. Never overwrites.
func (s *SQLiteStore) RenameConversation(ctx context.Context, id, newName string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET name = ?, updated_at = ?
		WHERE id = ?
	`, newName, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("renaming conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("renamed conversation", "id", id, "name", newName)
	return nil
}

// SetPinOrder pins (or unpins, with nil) a conversation.
// Pinning is metadata only and does not bump updated_at.
func (s *SQLiteStore) SetPinOrder(ctx context.Context, id string, pinOrder *int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET pin_order = ? WHERE id = ?
	`, nullInt(pinOrder), id)
	if err != nil {
		return fmt.Errorf("setting pin order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns (name, id) pairs for an owner, pinned
// conversations first in pin order, the rest by most recent activity.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM conversations
		WHERE owner_id = ?
		ORDER BY (pin_order IS NULL), pin_order ASC, updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		if err := rows.Scan(&cs.ID, &cs.Name); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		summaries = append(summaries, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return summaries, nil
}

// ListConversationsDetailed returns id -> {name, created_at, updated_at}
// for all of an owner's conversations.
func (s *SQLiteStore) ListConversationsDetailed(ctx context.Context, ownerID string) (map[string]ConversationDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM conversations
		WHERE owner_id = ?
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	details := make(map[string]ConversationDetail)
	for rows.Next() {
		var id, name, createdAtStr, updatedAtStr string
		if err := rows.Scan(&id, &name, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		details[id] = ConversationDetail{
			Name:      name,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return details, nil
}

// DeleteConversation removes a conversation and all its messages.
// Idempotent: deleting a nonexistent id is a no-op, not an error, to keep
// retry semantics simple.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted conversation", "id", id)
	}
	return nil
}

// AppendMessage adds a message to the end of a conversation and bumps the
// conversation's updated_at. Returns the new message ID, or ErrNotFound if
// the conversation doesn't exist.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now.Format(time.RFC3339), conversationID)
	if err != nil {
		return "", fmt.Errorf("touching conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return "", ErrNotFound
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if err := insertMessageTx(ctx, tx, conversationID, msg); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", conversationID,
		"role", role)
	return msg.ID, nil
}

// ReadMessages retrieves messages for a conversation in insertion order.
// limit <= 0 returns all messages; page is 1-based and only applies when a
// limit is set.
func (s *SQLiteStore) ReadMessages(ctx context.Context, conversationID string, limit, page int) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at, updated_at, updated_by, feedback_received
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	args := []any{conversationID}

	if limit > 0 {
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, (page-1)*limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a single message by conversation and message ID.
// Returns ErrNotFound if absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, role, content, created_at, updated_at, updated_by, feedback_received
		FROM messages
		WHERE conversation_id = ? AND id = ?
	`, conversationID, messageID)

	msg, err := scanMessage(row)
	if err == nil {
		return msg, nil
	}
	return nil, err
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var createdAtStr string
	var updatedAt, updatedBy sql.NullString
	var feedback int

	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
		&createdAtStr, &updatedAt, &updatedBy, &feedback)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}

	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing message updated_at: %w", err)
		}
		msg.UpdatedAt = &t
	}
	if updatedBy.Valid {
		msg.UpdatedBy = &updatedBy.String
	}
	msg.FeedbackReceived = feedback != 0

	return &msg, nil
}

// UpdateMessageByID replaces a message's content, recording who mutated it
// and when. Bumps the conversation's updated_at. Returns ErrNotFound if the
// message is absent from the conversation.
func (s *SQLiteStore) UpdateMessageByID(ctx context.Context, conversationID, messageID, newContent, updatedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateMessageTx(ctx, tx, conversationID, messageID, newContent, updatedBy); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}

	s.logger.Debug("updated message",
		"id", messageID,
		"conversation_id", conversationID,
		"updated_by", updatedBy)
	return nil
}

func updateMessageTx(ctx context.Context, tx *sql.Tx, conversationID, messageID, newContent, updatedBy string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, updated_at = ?, updated_by = ?
		WHERE conversation_id = ? AND id = ?
	`, newContent, now, updatedBy, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// UpdateMessageByContent updates the first message (in insertion order) whose
// content equals oldContent exactly and returns its ID. Deprecated
// convenience: ambiguous when content is duplicated; prefer UpdateMessageByID.
func (s *SQLiteStore) UpdateMessageByContent(ctx context.Context, conversationID, oldContent, newContent, updatedBy string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	messageID, err := firstMessageIDByContentTx(ctx, tx, conversationID, oldContent)
	if err != nil {
		return "", err
	}

	if err := updateMessageTx(ctx, tx, conversationID, messageID, newContent, updatedBy); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing update: %w", err)
	}

	s.logger.Debug("updated message by content",
		"id", messageID,
		"conversation_id", conversationID)
	return messageID, nil
}

// firstMessageIDByContentTx resolves content to the first matching message ID
// in insertion order. Returns ErrNotFound if nothing matches.
func firstMessageIDByContentTx(ctx context.Context, tx *sql.Tx, conversationID, content string) (string, error) {
	var messageID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ? AND content = ?
		ORDER BY seq ASC
		LIMIT 1
	`, conversationID, content).Scan(&messageID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying message by content: %w", err)
	}
	return messageID, nil
}

// DeleteMessageByID removes a message from a conversation and bumps the
// conversation's updated_at. Returns ErrNotFound if the message is absent.
func (s *SQLiteStore) DeleteMessageByID(ctx context.Context, conversationID, messageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteMessageTx(ctx, tx, conversationID, messageID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted message", "id", messageID, "conversation_id", conversationID)
	return nil
}

func deleteMessageTx(ctx context.Context, tx *sql.Tx, conversationID, messageID string) error {
	result, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id = ? AND id = ?
	`, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), conversationID); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// DeleteMessageByContent deletes the first message (in insertion order) whose
// content matches exactly and returns its ID. Deprecated convenience; prefer
// DeleteMessageByID.
func (s *SQLiteStore) DeleteMessageByContent(ctx context.Context, conversationID, content string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	messageID, err := firstMessageIDByContentTx(ctx, tx, conversationID, content)
	if err != nil {
		return "", err
	}

	if err := deleteMessageTx(ctx, tx, conversationID, messageID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted message by content",
		"id", messageID,
		"conversation_id", conversationID)
	return messageID, nil
}

// SetMessageFeedback flags a message as having received feedback from the
// external feedback pipeline. Not treated as a content mutation: updated_at
// and updated_by are untouched.
func (s *SQLiteStore) SetMessageFeedback(ctx context.Context, conversationID, messageID string, received bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET feedback_received = ?
		WHERE conversation_id = ? AND id = ?
	`, boolToInt(received), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("setting message feedback: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
