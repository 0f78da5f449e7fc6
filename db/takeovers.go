package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"speaktoheaven/models"
)

const takeoverColumns = `id, user_id, persona_id, operator_name, active, started_at, ended_at`

func scanTakeover(r rowScanner) (models.Takeover, error) {
	var (
		t     models.Takeover
		ended sql.NullTime
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.PersonaID, &t.OperatorName, &t.Active, &t.StartedAt, &ended); err != nil {
		return models.Takeover{}, err
	}
	if ended.Valid {
		e := ended.Time
		t.EndedAt = &e
	}
	return t, nil
}

func (s *Store) ActiveTakeover(ctx context.Context, userID, personaID string) (models.Takeover, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+takeoverColumns+`
		FROM takeovers
		WHERE user_id = $1 AND persona_id = $2 AND active
	`, userID, personaID)
	t, err := scanTakeover(row)
	if err != nil {
		return models.Takeover{}, notFound(err)
	}
	return t, nil
}

// StartTakeover retries once when a concurrent start wins the partial unique
// index on active rows.
func (s *Store) StartTakeover(ctx context.Context, userID, personaID, operator string) (models.Takeover, error) {
	t, err := s.startTakeover(ctx, userID, personaID, operator)
	if isUniqueViolation(err) {
		t, err = s.startTakeover(ctx, userID, personaID, operator)
	}
	return t, err
}

func (s *Store) startTakeover(ctx context.Context, userID, personaID, operator string) (models.Takeover, error) {
	var out models.Takeover
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE takeovers SET active = FALSE, ended_at = $3
			WHERE user_id = $1 AND persona_id = $2 AND active
		`, userID, personaID, now); err != nil {
			return fmt.Errorf("end previous takeover: %w", notFound(err))
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO takeovers (id, user_id, persona_id, operator_name, active, started_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)
			RETURNING `+takeoverColumns,
			uuid.NewString(), userID, personaID, operator, now)
		t, err := scanTakeover(row)
		if err != nil {
			if isUniqueViolation(err) {
				return err
			}
			return fmt.Errorf("insert takeover: %w", notFound(err))
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) StopTakeover(ctx context.Context, userID, personaID string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE takeovers SET active = FALSE, ended_at = NOW()
		WHERE user_id = $1 AND persona_id = $2 AND active
	`, userID, personaID)
	if err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("stop takeover: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListActiveTakeovers(ctx context.Context) ([]models.Takeover, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+takeoverColumns+`
		FROM takeovers
		WHERE active
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list takeovers: %w", err)
	}
	defer rows.Close()

	out := []models.Takeover{}
	for rows.Next() {
		t, err := scanTakeover(rows)
		if err != nil {
			return nil, fmt.Errorf("scan takeover: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
