package store

import (
	"context"
	"fmt"
	"time"
)

// Chat message roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// ChatMessage is one entry in a project's conversation transcript.
// Seq is assigned by the database and is strictly increasing per project,
// so transcript order survives restarts.
type ChatMessage struct {
	Seq       int64     `json:"seq"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendChat persists a chat message and returns its sequence number.
func (s *Store) AppendChat(ctx context.Context, projectID, role, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (project_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		projectID, role, content, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("append chat: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("chat seq: %w", err)
	}
	return seq, nil
}

// ChatHistory returns a project's transcript in insertion order. A zero
// limit returns everything.
func (s *Store) ChatHistory(ctx context.Context, projectID string, limit int) ([]ChatMessage, error) {
	q := `SELECT id, project_id, role, content, created_at
	      FROM chat_messages WHERE project_id = ? ORDER BY id ASC`
	args := []any{projectID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Seq, &m.ProjectID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
