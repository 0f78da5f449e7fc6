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

type Product string

const (
	ProductSubscription Product = "subscription"
	ProductCredits      Product = "credits"
	ProductLifetime     Product = "lifetime"
)

func (p Product) Valid() bool {
	switch p {
	case ProductSubscription, ProductCredits, ProductLifetime:
		return true
	}
	return false
}

type Prices struct {
	Subscription   string
	Credits        string
	CreditsPerPack int
	Lifetime       string
}

type CheckoutParams struct {
	UserID     string
	CustomerID string
	Product    Product
	PriceID    string
	Credits    int
	SuccessURL string
	CancelURL  string
}

// PaymentProcessor is the synchronous half of billing. Entitlement changes
// arrive separately through webhook events.
type PaymentProcessor interface {
	EnsureCustomer(ctx context.Context, u models.User) (string, error)
	CreateCheckout(ctx context.Context, p CheckoutParams) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (models.Subscription, error)
}

type BillingService struct {
	log         *logger.Logger
	accounts    AccountStore
	processor   PaymentProcessor
	notifier    Notifier
	prices      Prices
	frontendURL string
}

func NewBillingService(log *logger.Logger, accounts AccountStore, processor PaymentProcessor, notifier Notifier, prices Prices, frontendURL string) *BillingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if prices.CreditsPerPack <= 0 {
		prices.CreditsPerPack = 10
	}
	return &BillingService{
		log:         log.With("service", "BillingService"),
		accounts:    accounts,
		processor:   processor,
		notifier:    notifier,
		prices:      prices,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Apply resolves the event's user and applies it exactly once. Redelivered ids
// return applied=false with no effect.
func (b *BillingService) Apply(ctx context.Context, ev models.BillingEvent) (bool, error) {
	u, err := b.resolveUser(ctx, ev)
	if err != nil {
		return false, err
	}
	ev.UserID = u.ID
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	applied, err := b.accounts.ApplyBillingEvent(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("apply billing event %s: %w", ev.ID, err)
	}
	log := b.log.With("event_id", ev.ID, "kind", ev.Kind, "user_id", u.ID)
	if !applied {
		log.Info("Duplicate billing event skipped")
		return false, nil
	}
	log.Info("Billing event applied", "credits", ev.Credits)

	if ev.Kind == models.BillingCreditsPurchased {
		if fresh, err := b.accounts.GetUser(ctx, u.ID); err == nil {
			u = fresh
		}
		go b.notifier.CreditsPurchased(context.WithoutCancel(ctx), u, ev.Credits)
	}
	return true, nil
}

func (b *BillingService) resolveUser(ctx context.Context, ev models.BillingEvent) (models.User, error) {
	if ev.UserID != "" {
		u, err := b.accounts.GetUser(ctx, ev.UserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return models.User{}, err
		}
	}
	if ev.CustomerID != "" {
		u, err := b.accounts.GetUserByCustomer(ctx, ev.CustomerID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return models.User{}, err
		}
	}
	return models.User{}, fmt.Errorf("billing event %s user=%q customer=%q: %w", ev.ID, ev.UserID, ev.CustomerID, ErrNotFound)
}

// Checkout starts a hosted checkout for product and returns its URL.
func (b *BillingService) Checkout(ctx context.Context, userID string, product Product) (string, error) {
	if b.processor == nil {
		return "", ErrBillingDisabled
	}
	if !product.Valid() {
		return "", fmt.Errorf("unknown product %q: %w", product, ErrInvalidRequest)
	}
	u, err := b.accounts.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	params := CheckoutParams{
		UserID:     u.ID,
		Product:    product,
		SuccessURL: b.frontendURL + "/?checkout=success",
		CancelURL:  b.frontendURL + "/?checkout=cancel",
	}
	switch product {
	case ProductSubscription:
		params.PriceID = b.prices.Subscription
	case ProductCredits:
		params.PriceID = b.prices.Credits
		params.Credits = b.prices.CreditsPerPack
	case ProductLifetime:
		params.PriceID = b.prices.Lifetime
	}
	if params.PriceID == "" {
		return "", fmt.Errorf("no price configured for %s: %w", product, ErrBillingDisabled)
	}

	customerID := u.StripeCustomerID
	if customerID == "" {
		customerID, err = b.processor.EnsureCustomer(ctx, u)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
		if err := b.accounts.SetStripeCustomer(ctx, u.ID, customerID); err != nil {
			return "", fmt.Errorf("link customer: %w", err)
		}
	}
	params.CustomerID = customerID

	url, err := b.processor.CreateCheckout(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	b.log.Info("Checkout created", "user_id", u.ID, "product", product)
	return url, nil
}

func (b *BillingService) Cancel(ctx context.Context, userID string) (models.Subscription, error) {
	return b.setCancelAtPeriodEnd(ctx, userID, true)
}

func (b *BillingService) Reactivate(ctx context.Context, userID string) (models.Subscription, error) {
	return b.setCancelAtPeriodEnd(ctx, userID, false)
}

// setCancelAtPeriodEnd mirrors the processor's answer into the snapshot right
// away so the account view does not wait for the webhook.
func (b *BillingService) setCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) (models.Subscription, error) {
	if b.processor == nil {
		return models.Subscription{}, ErrBillingDisabled
	}
	u, err := b.accounts.GetUser(ctx, userID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("load user: %w", err)
	}
	if u.Subscription == nil || u.Subscription.ProcessorID == "" {
		return models.Subscription{}, ErrNoSubscription
	}

	sub, err := b.processor.SetCancelAtPeriodEnd(ctx, u.Subscription.ProcessorID, cancel)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}
	sub.UserID = u.ID
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}
	if _, err := b.accounts.SaveSubscription(ctx, sub); err != nil {
		return models.Subscription{}, fmt.Errorf("save subscription: %w", err)
	}
	b.log.Info("Subscription updated", "user_id", u.ID, "cancel_at_period_end", cancel)
	return sub, nil
}
