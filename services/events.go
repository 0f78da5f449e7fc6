package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

const (
	EventMessageCreated  = "message.created"
	EventTakeoverStarted = "takeover.started"
	EventTakeoverStopped = "takeover.stopped"
)

// ConversationEvent is fanned out to operator consoles whenever a conversation
// changes outside the caller's own request.
type ConversationEvent struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	PersonaID string          `json:"persona_id"`
	Operator  string          `json:"operator,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev ConversationEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ConversationEvent) error { return nil }

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(log *logger.Logger, addr, channel string) (*RedisPublisher, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if channel == "" {
		channel = "conversation-events"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Redis event publisher connected", "addr", addr, "channel", channel)
	return &RedisPublisher{rdb: rdb, channel: channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev ConversationEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
