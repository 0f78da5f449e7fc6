package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaktoheaven/logger"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

func newOperator(h *harness) *services.OperatorService {
	return services.NewOperatorService(logger.Nop(), h.catalog, h.store, h.store, h.takeovers, h.events)
}

func TestOperatorSendBypassesEntitlement(t *testing.T) {
	h := newHarness(t)
	op := newOperator(h)
	u := h.newUser(t, 0)
	ctx := context.Background()
	for i := 0; i < services.DefaultFreeQuota; i++ {
		_, err := h.send(t, u, "moses", "q")
		require.NoError(t, err)
	}

	msgs, err := op.Send(ctx, services.OperatorMessage{
		UserID: u.ID, PersonaID: "moses", Operator: "alice",
		Text: "I am here with you.", ImageRef: "https://img.example/tablets.png",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "I am here with you.", msgs[0].Body)
	assert.Equal(t, "[image]https://img.example/tablets.png", msgs[1].Body)
	for _, m := range msgs {
		assert.Equal(t, models.SenderPersona, m.Sender)
	}

	conv, err := op.Conversation(ctx, u.ID, "moses")
	require.NoError(t, err)
	assert.Len(t, conv, services.DefaultFreeQuota*2+2)

	got, err := h.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Credits)
}

func TestOperatorSendValidation(t *testing.T) {
	h := newHarness(t)
	op := newOperator(h)
	u := h.newUser(t, 0)
	ctx := context.Background()

	_, err := op.Send(ctx, services.OperatorMessage{UserID: u.ID, PersonaID: "moses", Text: "  "})
	assert.ErrorIs(t, err, services.ErrEmptyMessage)
	_, err = op.Send(ctx, services.OperatorMessage{UserID: u.ID, PersonaID: "zeus", Text: "hi"})
	assert.ErrorIs(t, err, services.ErrInvalidPersona)
	_, err = op.Send(ctx, services.OperatorMessage{UserID: "ghost", PersonaID: "moses", Text: "hi"})
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, h.history(t, u, "moses"))
}

func TestOperatorTakeoverRoundTrip(t *testing.T) {
	h := newHarness(t)
	op := newOperator(h)
	u := h.newUser(t, 0)
	ctx := context.Background()

	_, err := op.StartTakeover(ctx, u.ID, "zeus", "alice")
	assert.ErrorIs(t, err, services.ErrInvalidPersona)

	tk, err := op.StartTakeover(ctx, u.ID, "david", "alice")
	require.NoError(t, err)
	assert.True(t, tk.Active)

	active, err := op.ActiveTakeovers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "david", active[0].PersonaID)

	stopped, err := op.StopTakeover(ctx, u.ID, "david")
	require.NoError(t, err)
	assert.True(t, stopped)

	customers, err := op.Customers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}
