package models

import (
	"time"
)

type Persona struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Descriptor     string `json:"descriptor" yaml:"descriptor"`
	Avatar         string `json:"avatar" yaml:"avatar"`
	PromptTemplate string `json:"-" yaml:"prompt_template"`
}

type SenderKind string

const (
	SenderUser    SenderKind = "user"
	SenderPersona SenderKind = "persona"
)

func (k SenderKind) Valid() bool {
	return k == SenderUser || k == SenderPersona
}

type Message struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	PersonaID string     `json:"persona_id"`
	Sender    SenderKind `json:"sender"`
	Body      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
}

// Conversation summarizes one (user, persona) message log.
type Conversation struct {
	PersonaID    string  `json:"persona_id"`
	MessageCount int     `json:"message_count"`
	LastMessage  Message `json:"last_message"`
}

type Takeover struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PersonaID    string     `json:"persona_id"`
	OperatorName string     `json:"operator_name"`
	Active       bool       `json:"active"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}
