package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

const DefaultOperatorName = "operator"

// TakeoverArbiter owns the "a human is answering" flag per (user, persona).
type TakeoverArbiter struct {
	log    *logger.Logger
	store  TakeoverStore
	events EventPublisher
}

func NewTakeoverArbiter(log *logger.Logger, store TakeoverStore, events EventPublisher) *TakeoverArbiter {
	if events == nil {
		events = NopPublisher{}
	}
	return &TakeoverArbiter{
		log:    log.With("service", "TakeoverArbiter"),
		store:  store,
		events: events,
	}
}

// Active returns the live takeover for the pair, if any.
func (a *TakeoverArbiter) Active(ctx context.Context, userID, personaID string) (models.Takeover, bool, error) {
	t, err := a.store.ActiveTakeover(ctx, userID, personaID)
	if errors.Is(err, ErrNotFound) {
		return models.Takeover{}, false, nil
	}
	if err != nil {
		return models.Takeover{}, false, fmt.Errorf("load takeover: %w", err)
	}
	return t, true, nil
}

func (a *TakeoverArbiter) IsActive(ctx context.Context, userID, personaID string) (bool, string, error) {
	t, ok, err := a.Active(ctx, userID, personaID)
	return ok, t.OperatorName, err
}

// Start hands the pair to operatorName. Starting again rotates the owner.
func (a *TakeoverArbiter) Start(ctx context.Context, userID, personaID, operatorName string) (models.Takeover, error) {
	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		operatorName = DefaultOperatorName
	}
	t, err := a.store.StartTakeover(ctx, userID, personaID, operatorName)
	if err != nil {
		return models.Takeover{}, fmt.Errorf("start takeover: %w", err)
	}
	a.log.Info("Takeover started", "user_id", userID, "persona", personaID, "operator", operatorName)
	a.publish(ctx, ConversationEvent{Type: EventTakeoverStarted, UserID: userID, PersonaID: personaID, Operator: operatorName})
	return t, nil
}

func (a *TakeoverArbiter) Stop(ctx context.Context, userID, personaID string) (bool, error) {
	stopped, err := a.store.StopTakeover(ctx, userID, personaID)
	if err != nil {
		return false, fmt.Errorf("stop takeover: %w", err)
	}
	if stopped {
		a.log.Info("Takeover stopped", "user_id", userID, "persona", personaID)
		a.publish(ctx, ConversationEvent{Type: EventTakeoverStopped, UserID: userID, PersonaID: personaID})
	}
	return stopped, nil
}

func (a *TakeoverArbiter) ListActive(ctx context.Context) ([]models.Takeover, error) {
	return a.store.ListActiveTakeovers(ctx)
}

func (a *TakeoverArbiter) publish(ctx context.Context, ev ConversationEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		a.log.Warn("Publish conversation event failed", "type", ev.Type, "error", err)
	}
}
