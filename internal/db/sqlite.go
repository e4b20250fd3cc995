package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"finker/internal/errs"
	"finker/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);`

// DefaultTitle is given to conversations created implicitly when a turn
// arrives without a usable target.
const DefaultTitle = "New conversation"

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", errs.ErrStore, op, err)
}

func (db *Database) CreateUser(username, passwordHash string) (*models.User, error) {
	user := &models.User{
		Username:     strings.ToLower(strings.TrimSpace(username)),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	query := `
        INSERT INTO users (username, password_hash, created_at)
        VALUES (?, ?, ?)
        RETURNING id`

	err := db.db.QueryRow(query, user.Username, user.PasswordHash, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, errs.ErrUsernameTaken
		}
		return nil, storeErr("create user", err)
	}
	return user, nil
}

func (db *Database) GetUserByUsername(username string) (*models.User, error) {
	query := `
        SELECT id, username, password_hash, created_at
        FROM users
        WHERE username = ?`

	user := &models.User{}
	err := db.db.QueryRow(query, strings.ToLower(strings.TrimSpace(username))).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return user, nil
}

// ResolveOrCreateConversation returns requestedID when that conversation
// exists and belongs to userID. Any other id — zero, unknown, or owned by
// someone else — silently falls back to creating a fresh conversation, so a
// stale or guessed id never errors and never exposes a foreign conversation.
func (db *Database) ResolveOrCreateConversation(userID, requestedID int64) (int64, error) {
	if requestedID != 0 {
		var id int64
		err := db.db.QueryRow(
			`SELECT id FROM conversations WHERE id = ? AND user_id = ?`,
			requestedID, userID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, storeErr("resolve conversation", err)
		}
	}

	conv, err := db.CreateConversation(userID, DefaultTitle)
	if err != nil {
		return 0, err
	}
	return conv.ID, nil
}

func (db *Database) CreateConversation(userID int64, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
        INSERT INTO conversations (user_id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`

	if err := db.db.QueryRow(query, userID, title, now, now).Scan(&conv.ID); err != nil {
		return nil, storeErr("create conversation", err)
	}
	return conv, nil
}

func (db *Database) GetConversation(id, userID int64) (*models.Conversation, error) {
	query := `
        SELECT id, user_id, title, created_at, updated_at
        FROM conversations
        WHERE id = ? AND user_id = ?`

	conv := &models.Conversation{}
	err := db.db.QueryRow(query, id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return conv, nil
}

func (db *Database) ListConversations(userID int64) ([]models.Conversation, error) {
	query := `
        SELECT id, user_id, title, created_at, updated_at
        FROM conversations
        WHERE user_id = ?
        ORDER BY updated_at DESC`

	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, storeErr("scan conversation", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) RenameConversation(id, userID int64, title string) (*models.Conversation, error) {
	query := `
        UPDATE conversations
        SET title = ?, updated_at = ?
        WHERE id = ? AND user_id = ?
        RETURNING id, user_id, title, created_at, updated_at`

	conv := &models.Conversation{}
	err := db.db.QueryRow(query, title, time.Now().UTC(), id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("rename conversation", err)
	}
	return conv, nil
}

// DeleteConversation removes the conversation and, through the cascade on
// messages.conversation_id, its whole transcript.
func (db *Database) DeleteConversation(id, userID int64) error {
	result, err := db.db.Exec(`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return storeErr("delete conversation", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("delete conversation", err)
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchConversation bumps updated_at. The WHERE clause doubles as the
// ownership check: no matching row means the conversation is gone or foreign,
// and the caller gets ErrNotFound either way.
func (db *Database) TouchConversation(id, userID int64) (*models.Conversation, error) {
	query := `
        UPDATE conversations
        SET updated_at = ?
        WHERE id = ? AND user_id = ?
        RETURNING id, user_id, title, created_at, updated_at`

	conv := &models.Conversation{}
	err := db.db.QueryRow(query, time.Now().UTC(), id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("touch conversation", err)
	}
	return conv, nil
}

func (db *Database) SaveMessage(msg *models.Message) error {
	msg.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO messages (conversation_id, user_id, role, content, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING id`

	err := db.db.QueryRow(query, msg.ConvID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return storeErr("save message", err)
	}
	return nil
}

func (db *Database) DeleteMessage(convID, userID, messageID int64) error {
	if _, err := db.GetConversation(convID, userID); err != nil {
		return err
	}

	result, err := db.db.Exec(
		`DELETE FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, convID,
	)
	if err != nil {
		return storeErr("delete message", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("delete message", err)
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// GetConversationHistory returns the transcript in creation order. The join
// against conversations.user_id is the authorization check; a foreign
// conversation simply yields no rows. Ties on created_at fall back to id so
// the order stays a strict total order.
func (db *Database) GetConversationHistory(convID, userID int64) ([]models.Message, error) {
	query := `
        SELECT m.id, m.conversation_id, m.user_id, m.role, m.content, m.created_at
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE m.conversation_id = ? AND c.user_id = ?
        ORDER BY m.created_at ASC, m.id ASC`

	rows, err := db.db.Query(query, convID, userID)
	if err != nil {
		return nil, storeErr("get history", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, storeErr("scan message", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
