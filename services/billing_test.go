package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"speaktoheaven/logger"
	"speaktoheaven/memstore"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

type fakeProcessor struct {
	customers int
	checkouts []services.CheckoutParams
	cancel    *bool
}

func (p *fakeProcessor) EnsureCustomer(_ context.Context, u models.User) (string, error) {
	p.customers++
	return "cus_" + u.ID, nil
}

func (p *fakeProcessor) CreateCheckout(_ context.Context, params services.CheckoutParams) (string, error) {
	p.checkouts = append(p.checkouts, params)
	return "https://checkout.example/" + string(params.Product), nil
}

func (p *fakeProcessor) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (models.Subscription, error) {
	p.cancel = &cancel
	return models.Subscription{ProcessorID: id, Status: models.SubscriptionActive, CancelAtPeriodEnd: cancel}, nil
}

func newBilling(t *testing.T) (*services.BillingService, *memstore.Store, *fakeProcessor) {
	t.Helper()
	store := memstore.New()
	proc := &fakeProcessor{}
	b := services.NewBillingService(logger.Nop(), store, proc, nil, services.Prices{
		Subscription:   "price_sub",
		Credits:        "price_credits",
		CreditsPerPack: 10,
		Lifetime:       "price_life",
	}, "https://app.example/")
	return b, store, proc
}

func stripeEvent(t *testing.T, id, typ string, created int64, obj any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return stripe.Event{ID: id, Type: stripe.EventType(typ), Created: created, Data: &stripe.EventData{Raw: raw}}
}

func TestWebhookDeliveredTwiceGrantsOnce(t *testing.T) {
	b, store, _ := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "buyer@example.com", "", 0)
	require.NoError(t, err)

	ev, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_1", "checkout.session.completed", 0, map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"payment_status":      "paid",
		"client_reference_id": u.ID,
		"customer":            "cus_9",
		"metadata":            map[string]string{"kind": "credits", "credits": "10"},
	}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.BillingCreditsPurchased, ev.Kind)

	applied, err := b.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = b.Apply(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Credits)
	assert.Equal(t, "cus_9", got.StripeCustomerID)
}

func TestWebhookLifetimeByCustomer(t *testing.T) {
	b, store, _ := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "life@example.com", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.SetStripeCustomer(ctx, u.ID, "cus_life"))

	ev, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_2", "checkout.session.completed", 0, map[string]any{
		"id":             "cs_2",
		"object":         "checkout.session",
		"payment_status": "paid",
		"customer":       "cus_life",
		"metadata":       map[string]string{"kind": "lifetime"},
	}))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.Apply(ctx, ev)
	require.NoError(t, err)
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Lifetime)
}

func TestWebhookSubscriptionLastWriterWins(t *testing.T) {
	b, store, _ := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "sub@example.com", "", 0)
	require.NoError(t, err)

	sub := func(status string) map[string]any {
		return map[string]any{
			"id":                   "sub_1",
			"object":               "subscription",
			"status":               status,
			"customer":             "cus_sub",
			"current_period_end":   1900000000,
			"cancel_at_period_end": false,
			"metadata":             map[string]string{"user_id": u.ID},
			"items": map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"id": "si_1", "price": map[string]any{"id": "price_sub", "lookup_key": "premium"}},
				},
			},
		}
	}
	newer, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_new", "customer.subscription.updated", 2000, sub("active")))
	require.NoError(t, err)
	require.True(t, ok)
	older, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_old", "customer.subscription.deleted", 1000, sub("active")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.SubscriptionCanceled, older.Subscription.Status)

	_, err = b.Apply(ctx, newer)
	require.NoError(t, err)
	_, err = b.Apply(ctx, older)
	require.NoError(t, err)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, models.SubscriptionActive, got.Subscription.Status)
	assert.Equal(t, "premium", got.Subscription.Tier)
	require.NotNil(t, got.Subscription.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1900000000, 0).UTC(), *got.Subscription.CurrentPeriodEnd)
}

func TestWebhookUnknownUser(t *testing.T) {
	b, _, _ := newBilling(t)
	_, err := b.Apply(context.Background(), models.BillingEvent{
		ID: "evt_x", Kind: models.BillingLifetimeGranted, UserID: "ghost", CustomerID: "cus_ghost",
	})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestTranslateIgnoresOtherEvents(t *testing.T) {
	_, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_inv", "invoice.payment_succeeded", 0, map[string]any{"id": "in_1"}))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = services.TranslateStripeEvent(stripeEvent(t, "evt_bad", "checkout.session.completed", 0, map[string]any{
		"id":             "cs_bad",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{"kind": "credits", "credits": "lots"},
	}))
	assert.Error(t, err)
}

func TestCheckoutAwaitingPaymentGrantsOnSettlement(t *testing.T) {
	b, store, _ := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "delayed@example.com", "", 0)
	require.NoError(t, err)

	session := func(status string, customer bool) map[string]any {
		obj := map[string]any{
			"id":                  "cs_delayed",
			"object":              "checkout.session",
			"payment_status":      status,
			"client_reference_id": u.ID,
			"metadata":            map[string]string{"kind": "credits", "credits": "10"},
		}
		if customer {
			obj["customer"] = "cus_delayed"
		}
		return obj
	}

	_, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_unpaid_anon", "checkout.session.completed", 0, session("unpaid", false)))
	require.NoError(t, err)
	assert.False(t, ok)

	pending, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_unpaid", "checkout.session.completed", 0, session("unpaid", true)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.BillingCustomerLinked, pending.Kind)
	assert.Zero(t, pending.Credits)

	_, err = b.Apply(ctx, pending)
	require.NoError(t, err)
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Credits)
	assert.Equal(t, "cus_delayed", got.StripeCustomerID)

	settled, ok, err := services.TranslateStripeEvent(stripeEvent(t, "evt_settled", "checkout.session.async_payment_succeeded", 0, session("paid", true)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.BillingCreditsPurchased, settled.Kind)

	applied, err := b.Apply(ctx, settled)
	require.NoError(t, err)
	assert.True(t, applied)
	got, err = store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Credits)
}

func TestCheckoutLinksCustomerOnce(t *testing.T) {
	b, store, proc := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "c@example.com", "", 0)
	require.NoError(t, err)

	url, err := b.Checkout(ctx, u.ID, services.ProductCredits)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/credits", url)
	_, err = b.Checkout(ctx, u.ID, services.ProductSubscription)
	require.NoError(t, err)

	assert.Equal(t, 1, proc.customers)
	require.Len(t, proc.checkouts, 2)
	assert.Equal(t, "price_credits", proc.checkouts[0].PriceID)
	assert.Equal(t, 10, proc.checkouts[0].Credits)
	assert.Equal(t, "https://app.example/?checkout=success", proc.checkouts[0].SuccessURL)
	assert.Equal(t, "price_sub", proc.checkouts[1].PriceID)

	_, err = b.Checkout(ctx, u.ID, services.Product("gold"))
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestCancelMirrorsSubscription(t *testing.T) {
	b, store, proc := newBilling(t)
	ctx := context.Background()
	u, err := store.CreateUser(ctx, "s@example.com", "", 0)
	require.NoError(t, err)

	_, err = b.Cancel(ctx, u.ID)
	assert.ErrorIs(t, err, services.ErrNoSubscription)

	_, err = store.SaveSubscription(ctx, models.Subscription{
		UserID: u.ID, ProcessorID: "sub_1", Status: models.SubscriptionActive, UpdatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	sub, err := b.Cancel(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, proc.cancel)
	assert.True(t, *proc.cancel)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Subscription.CancelAtPeriodEnd)

	sub, err = b.Reactivate(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, sub.CancelAtPeriodEnd)
}
