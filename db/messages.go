package db

import (
	"context"
	"fmt"

	"speaktoheaven/models"
)

func (s *Store) Append(ctx context.Context, userID, personaID string, sender models.SenderKind, body string) (models.Message, error) {
	if !sender.Valid() {
		return models.Message{}, fmt.Errorf("invalid sender kind %q", sender)
	}
	msg := models.Message{
		UserID:    userID,
		PersonaID: personaID,
		Sender:    sender,
		Body:      body,
	}
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO messages (user_id, persona_id, sender, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, userID, personaID, string(sender), body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", notFound(err))
	}
	return msg, nil
}

func (s *Store) History(ctx context.Context, userID, personaID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, user_id, persona_id, sender, body, created_at
		FROM messages
		WHERE user_id = $1 AND persona_id = $2
		ORDER BY id ASC
	`
	args := []any{userID, personaID}
	if limit > 0 {
		query = `
			SELECT id, user_id, persona_id, sender, body, created_at FROM (
				SELECT id, user_id, persona_id, sender, body, created_at
				FROM messages
				WHERE user_id = $1 AND persona_id = $2
				ORDER BY id DESC
				LIMIT $3
			) recent
			ORDER BY id ASC
		`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		if isInvalidID(err) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.UserID, &m.PersonaID, &sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = models.SenderKind(sender)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountUserTurns(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE user_id = $1 AND sender = 'user'
	`, userID).Scan(&n)
	if err != nil {
		if isInvalidID(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count user turns: %w", err)
	}
	return n, nil
}

func (s *Store) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.persona_id, m.sender, m.body, m.created_at, c.n
		FROM (
			SELECT persona_id, COUNT(*) AS n, MAX(id) AS last_id
			FROM messages
			WHERE user_id = $1
			GROUP BY persona_id
		) c
		JOIN messages m ON m.id = c.last_id
		ORDER BY m.id DESC
	`, userID)
	if err != nil {
		if isInvalidID(err) {
			return []models.Conversation{}, nil
		}
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		var sender string
		m := &c.LastMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.PersonaID, &sender, &m.Body, &m.CreatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		m.Sender = models.SenderKind(sender)
		c.PersonaID = m.PersonaID
		out = append(out, c)
	}
	return out, rows.Err()
}
