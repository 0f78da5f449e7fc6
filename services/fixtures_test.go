package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"speaktoheaven/config"
	"speaktoheaven/logger"
	"speaktoheaven/memstore"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

// fakeCompletion records every request and answers with reply or err.
type fakeCompletion struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []services.CompletionRequest
}

func (f *fakeCompletion) Complete(ctx context.Context, req services.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompletion) Calls() []services.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]services.CompletionRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []services.ConversationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev services.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type handoffNotifier struct {
	services.NopNotifier
	got chan models.Message
}

func (n *handoffNotifier) HandoffMessage(_ context.Context, _ models.User, _ models.Persona, _ models.Takeover, msg models.Message) {
	n.got <- msg
}

type harness struct {
	store      *memstore.Store
	catalog    *config.Catalog
	completion *fakeCompletion
	events     *recordingPublisher
	takeovers  *services.TakeoverArbiter
	chat       *services.ChatService
}

type harnessOpt func(*services.ChatDeps)

func withHistoryLimit(n int) harnessOpt {
	return func(d *services.ChatDeps) { d.HistoryLimit = n }
}

func withNotifier(n services.Notifier) harnessOpt {
	return func(d *services.ChatDeps) { d.Notifier = n }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	h := &harness{
		store:      memstore.New(),
		catalog:    catalog,
		completion: &fakeCompletion{reply: "Peace be with you."},
		events:     &recordingPublisher{},
	}
	log := logger.Nop()
	h.takeovers = services.NewTakeoverArbiter(log, h.store, h.events)

	deps := services.ChatDeps{
		Log:        log,
		Personas:   catalog,
		Messages:   h.store,
		Accounts:   h.store,
		Resolver:   services.NewEntitlementResolver(h.store, services.DefaultFreeQuota),
		Takeovers:  h.takeovers,
		Completion: h.completion,
		Settings:   services.DefaultCompletionSettings(),
		Events:     h.events,
	}
	for _, o := range opts {
		o(&deps)
	}
	h.chat = services.NewChatService(deps)
	return h
}

func (h *harness) newUser(t *testing.T, credits int) models.User {
	t.Helper()
	u, err := h.store.CreateUser(context.Background(), t.Name()+"@example.com", "", credits)
	require.NoError(t, err)
	return u
}

func (h *harness) send(t *testing.T, u models.User, persona, text string) (services.ChatResult, error) {
	t.Helper()
	return h.chat.Send(context.Background(), services.ChatRequest{UserID: u.ID, PersonaID: persona, Message: text})
}

func (h *harness) history(t *testing.T, u models.User, persona string) []models.Message {
	t.Helper()
	msgs, err := h.store.History(context.Background(), u.ID, persona, 0)
	require.NoError(t, err)
	return msgs
}

var errUpstream = errors.New("upstream 503")
