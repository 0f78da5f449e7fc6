// Package memstore keeps every repository in process memory. It backs the
// STORAGE_DRIVER=memory dev mode and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"speaktoheaven/models"
	"speaktoheaven/services"
)

type pairKey struct {
	userID    string
	personaID string
}

type Store struct {
	mu sync.Mutex

	seq       int64
	messages  map[pairKey][]models.Message
	userTurns map[string]int

	users       map[string]*models.User
	byEmail     map[string]string
	billingSeen map[string]time.Time

	takeovers []models.Takeover

	now func() time.Time
}

var (
	_ services.MessageStore  = (*Store)(nil)
	_ services.AccountStore  = (*Store)(nil)
	_ services.TakeoverStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		messages:    map[pairKey][]models.Message{},
		userTurns:   map[string]int{},
		users:       map[string]*models.User{},
		byEmail:     map[string]string{},
		billingSeen: map[string]time.Time{},
		now:         time.Now,
	}
}

// ---- messages ----

func (s *Store) Append(ctx context.Context, userID, personaID string, sender models.SenderKind, body string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if !sender.Valid() {
		return models.Message{}, fmt.Errorf("invalid sender kind %q", sender)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := models.Message{
		ID:        s.seq,
		UserID:    userID,
		PersonaID: personaID,
		Sender:    sender,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	k := pairKey{userID, personaID}
	s.messages[k] = append(s.messages[k], msg)
	if sender == models.SenderUser {
		s.userTurns[userID]++
	}
	return msg, nil
}

func (s *Store) History(ctx context.Context, userID, personaID string, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[pairKey{userID, personaID}]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]models.Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (s *Store) CountUserTurns(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userTurns[userID], nil
}

func (s *Store) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Conversation{}
	for k, msgs := range s.messages {
		if k.userID != userID || len(msgs) == 0 {
			continue
		}
		out = append(out, models.Conversation{
			PersonaID:    k.personaID,
			MessageCount: len(msgs),
			LastMessage:  msgs[len(msgs)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessage.ID > out[j].LastMessage.ID })
	return out, nil
}

// ---- accounts ----

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, credits int) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return models.User{}, services.ErrEmailTaken
	}
	if credits < 0 {
		credits = 0
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Credits:      credits,
		CreatedAt:    s.now().UTC(),
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return copyUser(u), nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, services.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, services.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) GetUserByCustomer(ctx context.Context, customerID string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if customerID != "" && u.StripeCustomerID == customerID {
			return copyUser(u), nil
		}
	}
	return models.User{}, services.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DebitCredit(ctx context.Context, userID string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, false, services.ErrNotFound
	}
	if u.Credits <= 0 {
		return u.Credits, false, nil
	}
	u.Credits--
	return u.Credits, true, nil
}

func (s *Store) AddCredits(ctx context.Context, userID string, n int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("credit grant must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, services.ErrNotFound
	}
	u.Credits += n
	return u.Credits, nil
}

func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return services.ErrNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub models.Subscription) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSubscriptionLocked(sub)
}

func (s *Store) saveSubscriptionLocked(sub models.Subscription) (bool, error) {
	u, ok := s.users[sub.UserID]
	if !ok {
		return false, services.ErrNotFound
	}
	if u.Subscription != nil && u.Subscription.UpdatedAt.After(sub.UpdatedAt) {
		return false, nil
	}
	cp := sub
	u.Subscription = &cp
	return true, nil
}

func (s *Store) ApplyBillingEvent(ctx context.Context, ev models.BillingEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ev.ID == "" {
		return false, fmt.Errorf("billing event id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.billingSeen[ev.ID]; seen {
		return false, nil
	}
	u, ok := s.users[ev.UserID]
	if !ok {
		return false, services.ErrNotFound
	}
	switch ev.Kind {
	case models.BillingCreditsPurchased:
		if ev.Credits <= 0 {
			return false, fmt.Errorf("credit grant must be positive, got %d", ev.Credits)
		}
		u.Credits += ev.Credits
	case models.BillingLifetimeGranted:
		u.Lifetime = true
	case models.BillingSubscriptionChanged:
		if ev.Subscription == nil {
			return false, fmt.Errorf("subscription event %s without snapshot", ev.ID)
		}
		sub := *ev.Subscription
		sub.UserID = u.ID
		if _, err := s.saveSubscriptionLocked(sub); err != nil {
			return false, err
		}
	case models.BillingCustomerLinked:
	default:
		return false, fmt.Errorf("unknown billing event kind %q", ev.Kind)
	}
	if ev.CustomerID != "" && u.StripeCustomerID == "" {
		u.StripeCustomerID = ev.CustomerID
	}
	received := ev.ReceivedAt
	if received.IsZero() {
		received = s.now()
	}
	s.billingSeen[ev.ID] = received
	return true, nil
}

func (s *Store) PruneBillingEvents(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.billingSeen {
		if at.Before(before) {
			delete(s.billingSeen, id)
			n++
		}
	}
	return n, nil
}

// SetLifetime and SetCredits are admin helpers for seeding dev data and tests.
func (s *Store) SetLifetime(userID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Lifetime = v
	}
}

func (s *Store) SetCredits(userID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Credits = n
	}
}

// ---- takeovers ----

func (s *Store) ActiveTakeover(ctx context.Context, userID, personaID string) (models.Takeover, error) {
	if err := ctx.Err(); err != nil {
		return models.Takeover{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.takeovers {
		if t.Active && t.UserID == userID && t.PersonaID == personaID {
			return t, nil
		}
	}
	return models.Takeover{}, services.ErrNotFound
}

func (s *Store) StartTakeover(ctx context.Context, userID, personaID, operator string) (models.Takeover, error) {
	if err := ctx.Err(); err != nil {
		return models.Takeover{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.endActiveLocked(userID, personaID, now)
	t := models.Takeover{
		ID:           uuid.NewString(),
		UserID:       userID,
		PersonaID:    personaID,
		OperatorName: operator,
		Active:       true,
		StartedAt:    now,
	}
	s.takeovers = append(s.takeovers, t)
	return t, nil
}

func (s *Store) StopTakeover(ctx context.Context, userID, personaID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endActiveLocked(userID, personaID, s.now().UTC()), nil
}

func (s *Store) endActiveLocked(userID, personaID string, at time.Time) bool {
	ended := false
	for i := range s.takeovers {
		t := &s.takeovers[i]
		if t.Active && t.UserID == userID && t.PersonaID == personaID {
			t.Active = false
			end := at
			t.EndedAt = &end
			ended = true
		}
	}
	return ended
}

func (s *Store) ListActiveTakeovers(ctx context.Context) ([]models.Takeover, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Takeover{}
	for _, t := range s.takeovers {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// CountTakeovers returns how many records, active or not, exist for a pair.
func (s *Store) CountTakeovers(userID, personaID string, activeOnly bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.takeovers {
		if t.UserID == userID && t.PersonaID == personaID && (!activeOnly || t.Active) {
			n++
		}
	}
	return n
}

func copyUser(u *models.User) models.User {
	out := *u
	if u.Subscription != nil {
		sub := *u.Subscription
		out.Subscription = &sub
	}
	return out
}
