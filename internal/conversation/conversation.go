// Package conversation persists multi-turn dialogs in PostgreSQL.
// Messages carry a per-conversation sequence number so history reads
// back in exact insertion order.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/welldone-ai/assistant/internal/log"
)

var (
	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidRole indicates an unsupported message role.
	ErrInvalidRole = errors.New("invalid message role")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a dialog owned by a single user.
type Conversation struct {
	ID        uuid.UUID
	UserID    string
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Message is a single turn in a conversation.
type Message struct {
	ConversationID uuid.UUID
	Role           string
	Content        string
	Metadata       map[string]any
	Sequence       int
	CreatedAt      time.Time
}

// DB is the database access the store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and their messages.
type Store struct {
	db     DB
	ttl    time.Duration
	logger log.Logger
}

// New creates a store. ttl sets expires_at on new conversations; zero
// disables expiry. If logger is nil, the default logger is used.
func New(db DB, ttl time.Duration, logger log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	return &Store{db: db, ttl: ttl, logger: logger}
}

// Create starts a conversation for userID and returns it.
func (s *Store) Create(ctx context.Context, userID string, metadata map[string]any) (*Conversation, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	conv := &Conversation{
		ID:       uuid.New(),
		UserID:   userID,
		Metadata: metadata,
	}

	var expires any
	if s.ttl != 0 {
		conv.ExpiresAt = time.Now().Add(s.ttl)
		expires = conv.ExpiresAt
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, metadata, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		conv.ID, userID, metadata, expires).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

// Get returns a conversation by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var conv Conversation
	var expires *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, metadata, created_at, expires_at
		FROM conversations WHERE id = $1`,
		id).Scan(&conv.ID, &conv.UserID, &conv.Metadata, &conv.CreatedAt, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	if expires != nil {
		conv.ExpiresAt = *expires
	}
	return &conv, nil
}

// Append adds a message to the conversation. The sequence number is
// assigned atomically from the current maximum, so concurrent appends
// never collide.
func (s *Store) Append(ctx context.Context, conversationID uuid.UUID, role, content string, metadata map[string]any) (*Message, error) {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content, metadata, sequence_number)
		SELECT $1, $2, $3, $4, coalesce(max(sequence_number), 0) + 1
		FROM conversation_messages WHERE conversation_id = $1
		RETURNING sequence_number, created_at`,
		conversationID, role, content, metadata).Scan(&msg.Sequence, &msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
		}
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"role", role,
		"sequence", msg.Sequence)
	return msg, nil
}

// History returns the most recent limit messages in ascending sequence
// order. limit <= 0 returns the full conversation.
func (s *Store) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT conversation_id, role, content, metadata, sequence_number, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY sequence_number DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ConversationID, &m.Role, &m.Content, &m.Metadata, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	// Fetched newest-first to apply the limit; callers want oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// PruneExpired removes conversations whose expires_at has passed.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM conversations WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("pruning expired conversations: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("expired conversations pruned", "count", n)
	}
	return tag.RowsAffected(), nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
