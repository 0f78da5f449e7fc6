package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"

	"speaktoheaven/models"
)

// Checkout metadata keys. The webhook reads back what CreateCheckout wrote.
const (
	metaUserID  = "user_id"
	metaKind    = "kind"
	metaCredits = "credits"
)

type StripeProcessor struct{}

// NewStripeProcessor sets the package-level API key used by every stripe call.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{}
}

func (StripeProcessor) EnsureCustomer(ctx context.Context, u models.User) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(u.Email),
		Metadata: map[string]string{
			metaUserID: u.ID,
		},
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (StripeProcessor) CreateCheckout(ctx context.Context, p CheckoutParams) (string, error) {
	meta := map[string]string{
		metaUserID: p.UserID,
		metaKind:   string(p.Product),
	}
	if p.Credits > 0 {
		meta[metaCredits] = strconv.Itoa(p.Credits)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata:   meta,
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if p.Product == ProductSubscription {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metaUserID: p.UserID},
		}
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (StripeProcessor) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (models.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return models.Subscription{}, err
	}
	return SubscriptionFromStripe(sub, time.Now().UTC()), nil
}

// TranslateStripeEvent reduces a verified webhook event to the entitlement
// change it causes. ok is false for event types that change nothing.
func TranslateStripeEvent(ev stripe.Event) (models.BillingEvent, bool, error) {
	out := models.BillingEvent{
		ID:         ev.ID,
		ReceivedAt: time.Now().UTC(),
	}
	if ev.Data == nil {
		return out, false, fmt.Errorf("event %s has no data", ev.ID)
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return out, false, fmt.Errorf("decode checkout session: %w", err)
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		out.UserID = sess.ClientReferenceID
		if out.UserID == "" {
			out.UserID = sess.Metadata[metaUserID]
		}

		kind := Product(sess.Metadata[metaKind])
		if (kind == ProductCredits || kind == ProductLifetime) && !paymentSettled(sess.PaymentStatus) {
			// Delayed methods settle later through async_payment_succeeded.
			kind = ""
		}
		switch kind {
		case ProductCredits:
			n, err := strconv.Atoi(sess.Metadata[metaCredits])
			if err != nil || n <= 0 {
				return out, false, fmt.Errorf("checkout %s: bad credits metadata %q", sess.ID, sess.Metadata[metaCredits])
			}
			out.Kind = models.BillingCreditsPurchased
			out.Credits = n
		case ProductLifetime:
			out.Kind = models.BillingLifetimeGranted
		default:
			// Subscription checkouts and unsettled payments only link the
			// customer; the snapshot comes from customer.subscription.* events.
			if out.CustomerID == "" {
				return out, false, nil
			}
			out.Kind = models.BillingCustomerLinked
		}
		return out, true, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return out, false, fmt.Errorf("decode subscription: %w", err)
		}
		at := time.Unix(ev.Created, 0).UTC()
		if ev.Created == 0 {
			at = out.ReceivedAt
		}
		snap := SubscriptionFromStripe(&sub, at)
		if ev.Type == "customer.subscription.deleted" {
			snap.Status = models.SubscriptionCanceled
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.UserID = sub.Metadata[metaUserID]
		out.Kind = models.BillingSubscriptionChanged
		out.Subscription = &snap
		return out, true, nil
	}
	return out, false, nil
}

func paymentSettled(status stripe.CheckoutSessionPaymentStatus) bool {
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// SubscriptionFromStripe maps a processor subscription to a snapshot stamped
// with freshness at.
func SubscriptionFromStripe(sub *stripe.Subscription, at time.Time) models.Subscription {
	snap := models.Subscription{
		ProcessorID:       sub.ID,
		Status:            models.ParseSubscriptionStatus(string(sub.Status)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UpdatedAt:         at,
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		snap.TrialEnd = &t
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			snap.Tier = item.Price.LookupKey
			if snap.Tier == "" {
				snap.Tier = item.Price.ID
			}
			break
		}
	}
	return snap
}
