package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"speaktoheaven/models"
	"speaktoheaven/services"
)

const userColumns = `
	u.id, u.email, u.password_hash, u.credits, u.lifetime, u.stripe_customer_id, u.created_at,
	s.processor_id, s.tier, s.status, s.cancel_at_period_end, s.current_period_end, s.trial_end, s.updated_at
`

const userFrom = `
	FROM users u
	LEFT JOIN subscriptions s ON s.user_id = u.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (models.User, error) {
	var (
		u          models.User
		customerID sql.NullString
		procID     sql.NullString
		tier       sql.NullString
		status     sql.NullString
		cancelEnd  sql.NullBool
		periodEnd  sql.NullTime
		trialEnd   sql.NullTime
		updatedAt  sql.NullTime
	)
	err := r.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Credits, &u.Lifetime, &customerID, &u.CreatedAt,
		&procID, &tier, &status, &cancelEnd, &periodEnd, &trialEnd, &updatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	u.StripeCustomerID = customerID.String
	if procID.Valid {
		sub := &models.Subscription{
			UserID:            u.ID,
			ProcessorID:       procID.String,
			Tier:              tier.String,
			Status:            models.ParseSubscriptionStatus(status.String),
			CancelAtPeriodEnd: cancelEnd.Bool,
			UpdatedAt:         updatedAt.Time,
		}
		if periodEnd.Valid {
			t := periodEnd.Time
			sub.CurrentPeriodEnd = &t
		}
		if trialEnd.Valid {
			t := trialEnd.Time
			sub.TrialEnd = &t
		}
		u.Subscription = sub
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, credits int) (models.User, error) {
	if credits < 0 {
		credits = 0
	}
	u := models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Credits:      credits,
	}
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, credits)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash, u.Credits).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return models.User{}, services.ErrEmailTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) getUserWhere(ctx context.Context, q querier, where string, arg any) (models.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+userFrom+"WHERE "+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	return s.getUserWhere(ctx, s.conn, "u.id = $1", userID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUserWhere(ctx, s.conn, "u.email = $1", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByCustomer(ctx context.Context, customerID string) (models.User, error) {
	if customerID == "" {
		return models.User{}, services.ErrNotFound
	}
	return s.getUserWhere(ctx, s.conn, "u.stripe_customer_id = $1", customerID)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT "+userColumns+userFrom+"ORDER BY u.created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DebitCredit(ctx context.Context, userID string) (int, bool, error) {
	var remaining int
	err := s.conn.QueryRowContext(ctx, `
		UPDATE users SET credits = credits - 1
		WHERE id = $1 AND credits > 0
		RETURNING credits
	`, userID).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("debit credit: %w", notFound(err))
	}
	// Nothing updated: either the balance is empty or the user is gone.
	if err := s.conn.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&remaining); err != nil {
		return 0, false, notFound(err)
	}
	return remaining, false, nil
}

func (s *Store) AddCredits(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("credit grant must be positive, got %d", n)
	}
	return addCredits(ctx, s.conn, userID, n)
}

func addCredits(ctx context.Context, q querier, userID string, n int) (int, error) {
	var balance int
	err := q.QueryRowContext(ctx, `
		UPDATE users SET credits = credits + $2 WHERE id = $1 RETURNING credits
	`, userID, n).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2 WHERE id = $1
	`, userID, nullString(customerID))
	if err != nil {
		return fmt.Errorf("set stripe customer: %w", notFound(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub models.Subscription) (bool, error) {
	return saveSubscription(ctx, s.conn, sub)
}

// saveSubscription upserts the snapshot unless the stored row is fresher.
func saveSubscription(ctx context.Context, q querier, sub models.Subscription) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO subscriptions
			(user_id, processor_id, tier, status, cancel_at_period_end, current_period_end, trial_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			processor_id = EXCLUDED.processor_id,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_end = EXCLUDED.current_period_end,
			trial_end = EXCLUDED.trial_end,
			updated_at = EXCLUDED.updated_at
		WHERE subscriptions.updated_at <= EXCLUDED.updated_at
	`, sub.UserID, sub.ProcessorID, sub.Tier, string(sub.Status), sub.CancelAtPeriodEnd,
		sub.CurrentPeriodEnd, sub.TrialEnd, sub.UpdatedAt)
	if err != nil {
		if pqCode(err) == "23503" {
			return false, services.ErrNotFound
		}
		return false, fmt.Errorf("save subscription: %w", notFound(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ApplyBillingEvent(ctx context.Context, ev models.BillingEvent) (bool, error) {
	if ev.ID == "" {
		return false, errors.New("billing event id required")
	}
	received := ev.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}

	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, ev.UserID).Scan(&userID)
		if err != nil {
			return notFound(err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO billing_events (id, kind, user_id, received_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, ev.ID, string(ev.Kind), userID, received)
		if err != nil {
			return fmt.Errorf("record billing event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		if ev.CustomerID != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE users SET stripe_customer_id = $2
				WHERE id = $1 AND stripe_customer_id IS NULL
			`, userID, ev.CustomerID); err != nil {
				return fmt.Errorf("link customer: %w", err)
			}
		}

		switch ev.Kind {
		case models.BillingCreditsPurchased:
			if ev.Credits <= 0 {
				return fmt.Errorf("credit grant must be positive, got %d", ev.Credits)
			}
			if _, err := addCredits(ctx, tx, userID, ev.Credits); err != nil {
				return err
			}
		case models.BillingLifetimeGranted:
			if _, err := tx.ExecContext(ctx, `UPDATE users SET lifetime = TRUE WHERE id = $1`, userID); err != nil {
				return fmt.Errorf("grant lifetime: %w", err)
			}
		case models.BillingSubscriptionChanged:
			if ev.Subscription == nil {
				return fmt.Errorf("subscription event %s without snapshot", ev.ID)
			}
			sub := *ev.Subscription
			sub.UserID = userID
			if _, err := saveSubscription(ctx, tx, sub); err != nil {
				return err
			}
		case models.BillingCustomerLinked:
		default:
			return fmt.Errorf("unknown billing event kind %q", ev.Kind)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) PruneBillingEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM billing_events WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune billing events: %w", err)
	}
	return res.RowsAffected()
}
