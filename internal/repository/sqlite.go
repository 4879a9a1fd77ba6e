// Package repository stores chats, messages and model configurations in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/viper/internal/domain"
)

// ErrNotFound is returned when an update or delete matches no row.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists backend state in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id)`,
		`CREATE TABLE IF NOT EXISTS model_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			base_url TEXT NOT NULL,
			api_key TEXT,
			model_id TEXT,
			headers TEXT,
			temperature REAL,
			max_tokens INTEGER,
			source TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("messages", "error", "ALTER TABLE messages ADD COLUMN error TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := s.ensureColumn("model_configs", "completions_path", "ALTER TABLE model_configs ADD COLUMN completions_path TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateChat creates a new chat.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *domain.ChatSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.Title, formatTime(chat.CreatedAt), formatTime(chat.UpdatedAt))
	return err
}

// GetChat retrieves a chat by ID. It returns nil when there is none.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chats WHERE id = ?`, id)
	chat, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats returns all chats, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]domain.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chats ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []domain.ChatSession{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

// UpdateChat sets the title (when non-nil) and the update time.
func (s *SQLiteStore) UpdateChat(ctx context.Context, id string, title *string, updatedAt time.Time) error {
	var res sql.Result
	var err error
	if title != nil {
		res, err = s.db.ExecContext(ctx, `UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
			*title, formatTime(updatedAt), id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`,
			formatTime(updatedAt), id)
	}
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteChat deletes a chat and its messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateMessage stores a message under chatID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID string, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, created_at, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, chatID, string(msg.Role), msg.Content, formatTime(msg.CreatedAt), string(msg.Status), msg.Error)
	return err
}

// ListMessages returns a chat's messages in the order they were stored.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at, status, error FROM messages WHERE chat_id = ? ORDER BY rowid ASC`,
		chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role, status, createdAt string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &createdAt, &status, &msg.Error); err != nil {
			return nil, err
		}
		msg.Role = domain.MessageRole(role)
		msg.Status = domain.MessageStatus(status)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessage applies the non-nil fields of patch.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, chatID, messageID string, patch domain.MessagePatch) error {
	var sets []string
	var args []interface{}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if len(sets) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE chat_id = ? AND id = ?`, chatID, messageID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	args = append(args, chatID, messageID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE chat_id = ? AND id = ?`, args...)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const modelColumns = `id, name, base_url, api_key, model_id, completions_path, headers, temperature, max_tokens, source`

// CreateModel stores a model configuration.
func (s *SQLiteStore) CreateModel(ctx context.Context, m *domain.ModelConfig, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_configs (`+modelColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.BaseURL, nullString(m.APIKey), nullString(m.ModelID), nullString(m.CompletionsPath),
		nullString(m.Headers), nullFloat(m.Temperature), nullInt(m.MaxTokens), nullString(m.Source),
		formatTime(now), formatTime(now))
	return err
}

// GetModel retrieves a model by ID. It returns nil when there is none.
func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*domain.ModelConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM model_configs WHERE id = ?`, id)
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListModels returns all models, most recently updated first.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]domain.ModelConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM model_configs ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	models := []domain.ModelConfig{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *m)
	}
	return models, rows.Err()
}

// UpdateModel replaces every field of the model with m.ID.
func (s *SQLiteStore) UpdateModel(ctx context.Context, m *domain.ModelConfig, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE model_configs SET name = ?, base_url = ?, api_key = ?, model_id = ?, completions_path = ?,
			headers = ?, temperature = ?, max_tokens = ?, source = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.BaseURL, nullString(m.APIKey), nullString(m.ModelID), nullString(m.CompletionsPath),
		nullString(m.Headers), nullFloat(m.Temperature), nullInt(m.MaxTokens), nullString(m.Source),
		formatTime(now), m.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// DeleteModel removes a model. Deleting a missing model is not an error.
func (s *SQLiteStore) DeleteModel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM model_configs WHERE id = ?`, id)
	return err
}

// GetSetting returns the value stored under key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores value under key.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row scanner) (*domain.ChatSession, error) {
	var chat domain.ChatSession
	var createdAt, updatedAt string
	if err := row.Scan(&chat.ID, &chat.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if chat.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if chat.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &chat, nil
}

func scanModel(row scanner) (*domain.ModelConfig, error) {
	var m domain.ModelConfig
	var apiKey, modelID, path, headers, source sql.NullString
	var temperature sql.NullFloat64
	var maxTokens sql.NullInt64
	if err := row.Scan(&m.ID, &m.Name, &m.BaseURL, &apiKey, &modelID, &path, &headers, &temperature, &maxTokens, &source); err != nil {
		return nil, err
	}
	m.APIKey = apiKey.String
	m.ModelID = modelID.String
	m.CompletionsPath = path.String
	m.Headers = headers.String
	m.Source = source.String
	if temperature.Valid {
		t := temperature.Float64
		m.Temperature = &t
	}
	if maxTokens.Valid {
		n := int(maxTokens.Int64)
		m.MaxTokens = &n
	}
	return &m, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use RFC 3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
