package models

import (
	"strings"
	"time"
)

type User struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	PasswordHash     string        `json:"-"`
	Credits          int           `json:"credits"`
	Lifetime         bool          `json:"lifetime"`
	StripeCustomerID string        `json:"-"`
	Subscription     *Subscription `json:"subscription,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// HasPaidHistory reports whether the user has ever been in contact with the
// payment processor. It decides which block reason an exhausted user sees.
func (u User) HasPaidHistory() bool {
	return u.StripeCustomerID != "" || u.Subscription != nil
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// ParseSubscriptionStatus folds processor statuses into the closed set above.
// Anything unknown is treated as inactive.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return SubscriptionActive
	case "trialing":
		return SubscriptionTrialing
	case "past_due", "unpaid":
		return SubscriptionPastDue
	case "canceled", "cancelled":
		return SubscriptionCanceled
	default:
		return SubscriptionInactive
	}
}

// Unlocks reports whether the status grants unlimited chatting.
func (s SubscriptionStatus) Unlocks() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Subscription mirrors the processor's subscription object for one user.
type Subscription struct {
	UserID            string             `json:"-"`
	ProcessorID       string             `json:"id"`
	Tier              string             `json:"tier"`
	Status            SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	TrialEnd          *time.Time         `json:"trial_end,omitempty"`
	// UpdatedAt is the processor-side freshness of this snapshot, not the row write time.
	UpdatedAt time.Time `json:"updated_at"`
}
