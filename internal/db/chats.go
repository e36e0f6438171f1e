package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/RichardoC/chatdesk/internal/models"
	"github.com/RichardoC/chatdesk/internal/title"
)

// EncodeMessages serializes a transcript to the text stored in the
// messages column. Order is preserved.
func EncodeMessages(messages []models.Message) (string, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	b, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}
	return string(b), nil
}

func DecodeMessages(raw string) ([]models.Message, error) {
	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// SaveConversation always inserts a new row and returns its id.
func (db *Database) SaveConversation(ctx context.Context, userID int64, chatTitle string, messages []models.Message) (int64, error) {
	payload, err := EncodeMessages(messages)
	if err != nil {
		return 0, err
	}

	query := `
        INSERT INTO chats (user_id, title, messages, timestamp)
        VALUES (?, ?, ?, ?)
        RETURNING id`

	var id int64
	ts := db.now().Format(title.TimestampLayout)
	if err := db.db.QueryRowContext(ctx, query, userID, chatTitle, payload, ts).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to save conversation: %w", err)
	}
	return id, nil
}

// UpdateConversation rewrites an existing row in place and bumps its
// timestamp. It returns ErrNotFound when the row is gone.
func (db *Database) UpdateConversation(ctx context.Context, id int64, chatTitle string, messages []models.Message) error {
	payload, err := EncodeMessages(messages)
	if err != nil {
		return err
	}

	ts := db.now().Format(title.TimestampLayout)
	res, err := db.db.ExecContext(ctx,
		"UPDATE chats SET title = ?, messages = ?, timestamp = ? WHERE id = ?",
		chatTitle, payload, ts, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConversation loads one conversation. A payload that no longer decodes
// is logged and returned as an empty transcript.
func (db *Database) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	query := `
        SELECT id, user_id, title, messages, timestamp
        FROM chats
        WHERE id = ?`

	var (
		conv models.Conversation
		raw  string
	)
	err := db.db.QueryRowContext(ctx, query, id).Scan(&conv.ID, &conv.UserID, &conv.Title, &raw, &conv.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.Messages, err = DecodeMessages(raw)
	if err != nil {
		db.logger.Warn("Corrupt conversation payload",
			zap.Int64("conversation_id", id),
			zap.Error(err))
		conv.Messages = []models.Message{}
	}
	return &conv, nil
}

// ListConversations returns a user's conversations, newest first.
func (db *Database) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	query := `
        SELECT id, title, messages, timestamp
        FROM chats
        WHERE user_id = ?
        ORDER BY timestamp DESC, id DESC`

	rows, err := db.db.QueryContext(ctx, query, userID)
	if err != nil {
		return []models.ConversationSummary{}, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var (
			s   models.ConversationSummary
			raw string
		)
		if err := rows.Scan(&s.ID, &s.Title, &raw, &s.Timestamp); err != nil {
			return []models.ConversationSummary{}, fmt.Errorf("failed to scan conversation: %w", err)
		}

		if messages, err := DecodeMessages(raw); err == nil {
			s.MessageCount = len(messages)
		} else {
			db.logger.Warn("Corrupt conversation payload",
				zap.Int64("conversation_id", s.ID),
				zap.Error(err))
		}
		s.DisplayTitle = title.DisplayTitle(s.Title, raw)
		s.DisplayTime = title.DisplayTime(s.Timestamp)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return []models.ConversationSummary{}, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return summaries, nil
}

// DeleteConversation removes a conversation. Deleting a missing id is not
// an error.
func (db *Database) DeleteConversation(ctx context.Context, id int64) error {
	if _, err := db.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// DeleteConversations removes every conversation owned by userID and
// reports how many were removed.
func (db *Database) DeleteConversations(ctx context.Context, userID int64) (int64, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
