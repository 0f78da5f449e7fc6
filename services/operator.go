package services

import (
	"context"
	"fmt"
	"strings"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

type OperatorMessage struct {
	UserID    string
	PersonaID string
	Operator  string
	Text      string
	ImageRef  string
}

// OperatorService is the human side of a conversation. Messages it writes are
// persona turns and never pass through entitlement.
type OperatorService struct {
	log       *logger.Logger
	personas  PersonaCatalog
	messages  MessageStore
	accounts  AccountStore
	takeovers *TakeoverArbiter
	events    EventPublisher
}

func NewOperatorService(log *logger.Logger, personas PersonaCatalog, messages MessageStore, accounts AccountStore, takeovers *TakeoverArbiter, events EventPublisher) *OperatorService {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &OperatorService{
		log:       log.With("service", "OperatorService"),
		personas:  personas,
		messages:  messages,
		accounts:  accounts,
		takeovers: takeovers,
		events:    events,
	}
}

// Send writes the operator's text and/or image as persona turns, text first.
func (o *OperatorService) Send(ctx context.Context, m OperatorMessage) ([]models.Message, error) {
	text := strings.TrimSpace(m.Text)
	image := strings.TrimSpace(m.ImageRef)
	if text == "" && image == "" {
		return nil, ErrEmptyMessage
	}
	if err := o.checkPair(ctx, m.UserID, m.PersonaID); err != nil {
		return nil, err
	}

	var bodies []string
	if text != "" {
		bodies = append(bodies, models.EncodeBody(models.PayloadText, text))
	}
	if image != "" {
		bodies = append(bodies, models.EncodeBody(models.PayloadImage, image))
	}

	out := make([]models.Message, 0, len(bodies))
	for _, body := range bodies {
		msg, err := o.messages.Append(ctx, m.UserID, m.PersonaID, models.SenderPersona, body)
		if err != nil {
			return out, fmt.Errorf("persist operator message: %w", err)
		}
		out = append(out, msg)
		if err := o.events.Publish(ctx, ConversationEvent{
			Type:      EventMessageCreated,
			UserID:    m.UserID,
			PersonaID: m.PersonaID,
			Operator:  m.Operator,
			Message:   &msg,
			At:        msg.CreatedAt,
		}); err != nil {
			o.log.Warn("Publish conversation event failed", "error", err)
		}
	}
	o.log.Info("Operator message sent", "user_id", m.UserID, "persona", m.PersonaID, "count", len(out))
	return out, nil
}

func (o *OperatorService) StartTakeover(ctx context.Context, userID, personaID, operator string) (models.Takeover, error) {
	if err := o.checkPair(ctx, userID, personaID); err != nil {
		return models.Takeover{}, err
	}
	return o.takeovers.Start(ctx, userID, personaID, operator)
}

func (o *OperatorService) StopTakeover(ctx context.Context, userID, personaID string) (bool, error) {
	if _, ok := o.personas.Get(personaID); !ok {
		return false, ErrInvalidPersona
	}
	return o.takeovers.Stop(ctx, userID, personaID)
}

func (o *OperatorService) ActiveTakeovers(ctx context.Context) ([]models.Takeover, error) {
	return o.takeovers.ListActive(ctx)
}

func (o *OperatorService) Customers(ctx context.Context) ([]models.User, error) {
	users, err := o.accounts.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (o *OperatorService) Conversation(ctx context.Context, userID, personaID string) ([]models.Message, error) {
	if err := o.checkPair(ctx, userID, personaID); err != nil {
		return nil, err
	}
	msgs, err := o.messages.History(ctx, userID, personaID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func (o *OperatorService) checkPair(ctx context.Context, userID, personaID string) error {
	if _, ok := o.personas.Get(personaID); !ok {
		return ErrInvalidPersona
	}
	if _, err := o.accounts.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}
