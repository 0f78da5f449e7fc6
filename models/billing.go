package models

import "time"

type BillingEventKind string

const (
	BillingCreditsPurchased    BillingEventKind = "credits_purchased"
	BillingLifetimeGranted     BillingEventKind = "lifetime_granted"
	BillingSubscriptionChanged BillingEventKind = "subscription_changed"
	BillingCustomerLinked      BillingEventKind = "customer_linked"
)

// BillingEvent is a processor event reduced to the one entitlement change it causes.
// ID is the processor's event id and is recorded so redelivery is a no-op.
type BillingEvent struct {
	ID           string
	Kind         BillingEventKind
	UserID       string
	CustomerID   string
	Credits      int
	Subscription *Subscription
	ReceivedAt   time.Time
}
