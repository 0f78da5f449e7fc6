package services

import (
	"context"
	"fmt"

	"speaktoheaven/models"
)

const (
	DefaultFreeQuota    = 5
	DefaultHistoryLimit = 20
)

type Outcome string

const (
	BlockedFreeQuota    Outcome = "blocked-free-quota-exceeded"
	BlockedNoCredits    Outcome = "blocked-no-credits"
	AllowedFree         Outcome = "allowed-free"
	AllowedCredit       Outcome = "allowed-via-credit"
	AllowedSubscription Outcome = "allowed-via-subscription"
	AllowedLifetime     Outcome = "allowed-via-lifetime"
)

type Decision struct {
	Outcome   Outcome `json:"outcome"`
	TurnsUsed int     `json:"turns_used"`
	Credits   int     `json:"credits"`
}

func (d Decision) Allowed() bool {
	switch d.Outcome {
	case AllowedFree, AllowedCredit, AllowedSubscription, AllowedLifetime:
		return true
	default:
		return false
	}
}

// RequiresDebit is true only for credit-funded turns; the caller must take
// exactly one credit before generating the reply.
func (d Decision) RequiresDebit() bool {
	return d.Outcome == AllowedCredit
}

// Err maps a blocked decision to the error returned to callers.
func (d Decision) Err() error {
	switch d.Outcome {
	case BlockedFreeQuota:
		return ErrFreeQuotaExceeded
	case BlockedNoCredits:
		return ErrNoCredits
	default:
		return nil
	}
}

// Decide is the entitlement state machine. turns is only consulted when
// neither lifetime access nor a live subscription settles the question.
func Decide(u models.User, turns int, freeQuota int) Decision {
	d := Decision{TurnsUsed: turns, Credits: u.Credits}
	switch {
	case u.Lifetime:
		d.Outcome = AllowedLifetime
	case u.Subscription != nil && u.Subscription.Status.Unlocks():
		d.Outcome = AllowedSubscription
	case turns < freeQuota:
		d.Outcome = AllowedFree
	case u.Credits > 0:
		d.Outcome = AllowedCredit
	case u.HasPaidHistory():
		d.Outcome = BlockedNoCredits
	default:
		d.Outcome = BlockedFreeQuota
	}
	return d
}

type EntitlementResolver struct {
	messages  MessageStore
	freeQuota int
}

func NewEntitlementResolver(messages MessageStore, freeQuota int) *EntitlementResolver {
	if freeQuota < 0 {
		freeQuota = DefaultFreeQuota
	}
	return &EntitlementResolver{messages: messages, freeQuota: freeQuota}
}

func (r *EntitlementResolver) FreeQuota() int { return r.freeQuota }

// Resolve has no side effects.
func (r *EntitlementResolver) Resolve(ctx context.Context, u models.User) (Decision, error) {
	if u.Lifetime || (u.Subscription != nil && u.Subscription.Status.Unlocks()) {
		return Decide(u, 0, r.freeQuota), nil
	}
	turns, err := r.messages.CountUserTurns(ctx, u.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("count user turns: %w", err)
	}
	return Decide(u, turns, r.freeQuota), nil
}
