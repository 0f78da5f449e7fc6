package services

import (
	"context"
	"errors"
	"time"

	"speaktoheaven/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// MessageStore is the append-only per-(user, persona) message log.
type MessageStore interface {
	Append(ctx context.Context, userID, personaID string, sender models.SenderKind, body string) (models.Message, error)
	// History returns messages oldest-first. A positive limit keeps only the most
	// recent limit messages.
	History(ctx context.Context, userID, personaID string, limit int) ([]models.Message, error)
	// CountUserTurns counts user-sent messages across every persona.
	CountUserTurns(ctx context.Context, userID string) (int, error)
	// Conversations lists every persona the user has messages with, most
	// recently active first.
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
}

type AccountStore interface {
	CreateUser(ctx context.Context, email, passwordHash string, credits int) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByCustomer(ctx context.Context, customerID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	// DebitCredit removes one credit only if the balance is positive. ok is false
	// when there was nothing to take.
	DebitCredit(ctx context.Context, userID string) (remaining int, ok bool, err error)
	AddCredits(ctx context.Context, userID string, n int) (int, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	// SaveSubscription writes the snapshot unless the stored one is fresher.
	SaveSubscription(ctx context.Context, sub models.Subscription) (bool, error)

	// ApplyBillingEvent records ev.ID and applies its effect atomically. A
	// previously recorded id is skipped and reported as applied=false.
	ApplyBillingEvent(ctx context.Context, ev models.BillingEvent) (applied bool, err error)
	PruneBillingEvents(ctx context.Context, before time.Time) (int64, error)
}

type TakeoverStore interface {
	// ActiveTakeover returns ErrNotFound when nobody holds the pair.
	ActiveTakeover(ctx context.Context, userID, personaID string) (models.Takeover, error)
	// StartTakeover deactivates any active record for the pair and activates a new
	// one in a single step.
	StartTakeover(ctx context.Context, userID, personaID, operator string) (models.Takeover, error)
	StopTakeover(ctx context.Context, userID, personaID string) (bool, error)
	ListActiveTakeovers(ctx context.Context) ([]models.Takeover, error)
}
