package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

const tracePreviewRunes = 120

type ChatRequest struct {
	UserID         string
	PersonaID      string
	Message        string
	ConversationID string
}

type Trace struct {
	TotalMessages int       `json:"totalMessages"`
	Preview       string    `json:"aiPreview"`
	Time          time.Time `json:"time"`
}

type ChatResult struct {
	Reply        string
	HandedOff    bool
	Operator     string
	Decision     Decision
	UserMessage  *models.Message
	ReplyMessage *models.Message
	Trace        *Trace
}

type ChatDeps struct {
	Log          *logger.Logger
	Personas     PersonaCatalog
	Messages     MessageStore
	Accounts     AccountStore
	Resolver     *EntitlementResolver
	Takeovers    *TakeoverArbiter
	Assembler    *Assembler
	Completion   CompletionClient
	Settings     CompletionSettings
	HistoryLimit int
	Events       EventPublisher
	Notifier     Notifier
}

// ChatService runs one inbound chat message through takeover routing,
// entitlement, persistence and the completion call.
type ChatService struct {
	log          *logger.Logger
	personas     PersonaCatalog
	messages     MessageStore
	accounts     AccountStore
	resolver     *EntitlementResolver
	takeovers    *TakeoverArbiter
	assembler    *Assembler
	completion   CompletionClient
	settings     CompletionSettings
	historyLimit int
	events       EventPublisher
	notifier     Notifier
}

func NewChatService(d ChatDeps) *ChatService {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Assembler == nil {
		d.Assembler = NewAssembler()
	}
	if d.Resolver == nil {
		d.Resolver = NewEntitlementResolver(d.Messages, DefaultFreeQuota)
	}
	if d.Settings.Timeout <= 0 {
		d.Settings.Timeout = DefaultCompletionSettings().Timeout
	}
	return &ChatService{
		log:          d.Log.With("service", "ChatService"),
		personas:     d.Personas,
		messages:     d.Messages,
		accounts:     d.Accounts,
		resolver:     d.Resolver,
		takeovers:    d.Takeovers,
		assembler:    d.Assembler,
		completion:   d.Completion,
		settings:     d.Settings,
		historyLimit: d.HistoryLimit,
		events:       d.Events,
		notifier:     d.Notifier,
	}
}

func (s *ChatService) Send(ctx context.Context, req ChatRequest) (ChatResult, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ChatResult{}, ErrEmptyMessage
	}
	persona, ok := s.personas.Get(req.PersonaID)
	if !ok {
		return ChatResult{}, ErrInvalidPersona
	}
	// A conversation is the (user, persona) pair, so its id is the persona id.
	if req.ConversationID != "" && req.ConversationID != persona.ID {
		return ChatResult{}, fmt.Errorf("conversation %s: %w", req.ConversationID, ErrNotFound)
	}
	user, err := s.accounts.GetUser(ctx, req.UserID)
	if err != nil {
		return ChatResult{}, fmt.Errorf("load user: %w", err)
	}
	log := s.log.With("user_id", user.ID, "persona", persona.ID)

	takeover, held, err := s.takeovers.Active(ctx, user.ID, persona.ID)
	if err != nil {
		return ChatResult{}, err
	}
	if held {
		return s.handOff(ctx, log, user, persona, takeover, text)
	}

	decision, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return ChatResult{}, err
	}
	if !decision.Allowed() {
		log.Info("Chat blocked", "outcome", decision.Outcome, "turns", decision.TurnsUsed)
		return ChatResult{Decision: decision}, decision.Err()
	}

	debited := false
	if decision.RequiresDebit() {
		remaining, ok, err := s.accounts.DebitCredit(ctx, user.ID)
		if err != nil {
			return ChatResult{}, fmt.Errorf("debit credit: %w", err)
		}
		if !ok {
			// Another request spent the last credit between resolve and debit.
			decision.Outcome = BlockedNoCredits
			decision.Credits = 0
			log.Info("Chat blocked", "outcome", decision.Outcome, "reason", "credit race")
			return ChatResult{Decision: decision}, ErrNoCredits
		}
		decision.Credits = remaining
		debited = true
	}
	refund := func(reason string) {
		if debited {
			s.refund(ctx, log, user.ID, reason)
		}
	}

	// History is read before the new turn is written so it is not sent twice.
	history, err := s.messages.History(ctx, user.ID, persona.ID, s.historyLimit)
	if err != nil {
		refund("history")
		return ChatResult{}, fmt.Errorf("load history: %w", err)
	}
	turns, err := s.assembler.Build(persona, history, text)
	if err != nil {
		refund("prompt")
		return ChatResult{}, err
	}

	userMsg, err := s.messages.Append(ctx, user.ID, persona.ID, models.SenderUser, models.EncodeBody(models.PayloadText, text))
	if err != nil {
		refund("persist user turn")
		return ChatResult{}, fmt.Errorf("persist user turn: %w", err)
	}
	result := ChatResult{Decision: decision, UserMessage: &userMsg}

	reply, err := s.complete(ctx, turns)
	if err != nil {
		refund("completion")
		log.Error("Completion failed", "error", err, "turns", len(turns))
		return result, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = NoResponsePlaceholder
	}

	replyMsg, err := s.messages.Append(ctx, user.ID, persona.ID, models.SenderPersona, models.EncodeBody(models.PayloadText, reply))
	if err != nil {
		refund("persist reply")
		return result, fmt.Errorf("persist reply: %w", err)
	}

	result.Reply = reply
	result.ReplyMessage = &replyMsg
	result.Trace = &Trace{
		TotalMessages: len(turns),
		Preview:       preview(reply, tracePreviewRunes),
		Time:          time.Now().UTC(),
	}
	log.Debug("Chat replied", "outcome", decision.Outcome, "turns", len(turns))
	return result, nil
}

// History returns the whole conversation between the user and a persona.
func (s *ChatService) History(ctx context.Context, userID, personaID string) ([]models.Message, error) {
	if _, ok := s.personas.Get(personaID); !ok {
		return nil, ErrInvalidPersona
	}
	msgs, err := s.messages.History(ctx, userID, personaID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func (s *ChatService) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	list, err := s.messages.Conversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

func (s *ChatService) handOff(ctx context.Context, log *logger.Logger, u models.User, p models.Persona, t models.Takeover, text string) (ChatResult, error) {
	msg, err := s.messages.Append(ctx, u.ID, p.ID, models.SenderUser, models.EncodeBody(models.PayloadText, text))
	if err != nil {
		return ChatResult{}, fmt.Errorf("persist user turn: %w", err)
	}
	log.Info("Chat handed off", "operator", t.OperatorName)

	if err := s.events.Publish(ctx, ConversationEvent{
		Type:      EventMessageCreated,
		UserID:    u.ID,
		PersonaID: p.ID,
		Operator:  t.OperatorName,
		Message:   &msg,
		At:        msg.CreatedAt,
	}); err != nil {
		log.Warn("Publish conversation event failed", "error", err)
	}
	go s.notifier.HandoffMessage(context.WithoutCancel(ctx), u, p, t, msg)

	return ChatResult{HandedOff: true, Operator: t.OperatorName, UserMessage: &msg}, nil
}

func (s *ChatService) complete(ctx context.Context, turns []Turn) (string, error) {
	if s.completion == nil {
		return "", errors.New("no completion client configured")
	}
	cctx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	return s.completion.Complete(cctx, CompletionRequest{
		Turns:       turns,
		Model:       s.settings.Model,
		Temperature: s.settings.Temperature,
		MaxTokens:   s.settings.MaxTokens,
	})
}

func (s *ChatService) refund(ctx context.Context, log *logger.Logger, userID, reason string) {
	balance, err := s.accounts.AddCredits(context.WithoutCancel(ctx), userID, 1)
	if err != nil {
		log.Error("Credit refund failed", "reason", reason, "error", err)
		return
	}
	log.Info("Credit refunded", "reason", reason, "credits", balance)
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
