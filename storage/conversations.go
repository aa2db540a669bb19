// Package storage persists conversations and their message history in a
// local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tether/model"
)

// ConversationStore handles conversation and message persistence.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore opens (or creates) the database under dataDir.
func NewConversationStore(dataDir string) (*ConversationStore, error) {
	// 0700 - user-only access, conversation history is sensitive
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "conversations.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &ConversationStore{db: db}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (cs *ConversationStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		model TEXT NOT NULL,
		enabled_servers TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		thinking TEXT,
		tool_calls TEXT,
		tool_call_id TEXT,
		tool_name TEXT,
		usage TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := cs.db.Exec(schema)
	if err != nil {
		return err
	}

	if err := cs.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds missing columns to databases created by older versions.
func (cs *ConversationStore) migrateSchema() error {
	hasThinking, err := cs.columnExists("messages", "thinking")
	if err != nil {
		return fmt.Errorf("failed to check for thinking column: %w", err)
	}
	if !hasThinking {
		if _, err := cs.db.Exec(`ALTER TABLE messages ADD COLUMN thinking TEXT DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add thinking column: %w", err)
		}
	}

	hasServers, err := cs.columnExists("conversations", "enabled_servers")
	if err != nil {
		return fmt.Errorf("failed to check for enabled_servers column: %w", err)
	}
	if !hasServers {
		if _, err := cs.db.Exec(`ALTER TABLE conversations ADD COLUMN enabled_servers TEXT DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add enabled_servers column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func (cs *ConversationStore) columnExists(tableName, columnName string) (bool, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", tableName)
	rows, err := cs.db.Query(query)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// CreateConversation inserts a new conversation.
func (cs *ConversationStore) CreateConversation(ctx context.Context, conv model.Conversation) error {
	query := `
	INSERT INTO conversations (id, title, model, enabled_servers, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := cs.db.ExecContext(ctx, query,
		conv.ID,
		conv.Title,
		conv.Model,
		strings.Join(conv.EnabledServers, ","),
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// GetConversation loads one conversation by id. Returns nil when it does not
// exist.
func (cs *ConversationStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	query := `
	SELECT id, title, model, enabled_servers, created_at, updated_at
	FROM conversations
	WHERE id = ?
	`

	var conv model.Conversation
	var servers string
	err := cs.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.Title,
		&conv.Model,
		&servers,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if servers != "" {
		conv.EnabledServers = strings.Split(servers, ",")
	}
	return &conv, nil
}

// ListConversations returns all conversations, newest first.
func (cs *ConversationStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	query := `
	SELECT id, title, model, enabled_servers, created_at, updated_at
	FROM conversations
	ORDER BY updated_at DESC
	`

	rows, err := cs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var servers string
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Model, &servers, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			continue
		}
		if servers != "" {
			conv.EnabledServers = strings.Split(servers, ",")
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// RenameConversation updates the title of a conversation.
func (cs *ConversationStore) RenameConversation(ctx context.Context, id, title string) error {
	result, err := cs.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}

	return nil
}

// SetConversationModel records a model switch between loop invocations.
func (cs *ConversationStore) SetConversationModel(ctx context.Context, id, modelName string) error {
	_, err := cs.db.ExecContext(ctx,
		`UPDATE conversations SET model = ?, updated_at = ? WHERE id = ?`,
		modelName, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update conversation model: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (cs *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := cs.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return tx.Commit()
}

// AppendMessage persists one message at the end of its conversation's history
// and bumps the conversation's update time.
func (cs *ConversationStore) AppendMessage(ctx context.Context, msg model.Message) error {
	toolCalls, err := encodeJSON(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	usage, err := encodeJSON(msg.Usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}

	query := `
	INSERT INTO messages (id, conversation_id, role, content, thinking, tool_calls, tool_call_id, tool_name, usage, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = cs.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
		msg.Thinking,
		toolCalls,
		msg.ToolCallID,
		msg.ToolName,
		usage,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = cs.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now(), msg.ConversationID)
	return err
}

// ReadMessages returns a conversation's full history in append order.
func (cs *ConversationStore) ReadMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `
	SELECT id, role, content, thinking, tool_calls, tool_call_id, tool_name, usage, timestamp
	FROM messages
	WHERE conversation_id = ?
	ORDER BY seq ASC
	`

	rows, err := cs.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var role, toolCalls, usage string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Thinking,
			&toolCalls, &msg.ToolCallID, &msg.ToolName, &usage, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.ConversationID = conversationID
		msg.Role = model.Role(role)
		if err := decodeJSON(toolCalls, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to decode tool calls for message %s: %w", msg.ID, err)
		}
		if err := decodeJSON(usage, &msg.Usage); err != nil {
			return nil, fmt.Errorf("failed to decode usage for message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// DeleteMessagesFrom removes messageID and everything appended after it in
// the same conversation. Used when regenerating a response.
func (cs *ConversationStore) DeleteMessagesFrom(ctx context.Context, conversationID, messageID string) error {
	var seq int64
	err := cs.db.QueryRowContext(ctx,
		`SELECT seq FROM messages WHERE conversation_id = ? AND id = ?`,
		conversationID, messageID).Scan(&seq)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %s not found in conversation %s", messageID, conversationID)
	}
	if err != nil {
		return err
	}

	_, err = cs.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND seq >= ?`,
		conversationID, seq)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return nil
}

// MessageCount returns the number of stored messages in a conversation.
func (cs *ConversationStore) MessageCount(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := cs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n, err
}

// SaveCurrentConversationID records the last active conversation.
func (cs *ConversationStore) SaveCurrentConversationID(ctx context.Context, id string) error {
	_, err := cs.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO app_state (key, value) VALUES ('current_conversation', ?)`, id)
	return err
}

// LoadCurrentConversationID returns the last active conversation id, or ""
// when none was recorded.
func (cs *ConversationStore) LoadCurrentConversationID(ctx context.Context) (string, error) {
	var id string
	err := cs.db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = 'current_conversation'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// Close closes the underlying database.
func (cs *ConversationStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}

// encodeJSON serializes v for a TEXT column; nil-ish values become "".
func encodeJSON(v any) (string, error) {
	switch t := v.(type) {
	case []model.ToolCall:
		if len(t) == 0 {
			return "", nil
		}
	case *model.Usage:
		if t == nil {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
