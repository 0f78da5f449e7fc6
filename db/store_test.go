package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaktoheaven/models"
	"speaktoheaven/services"
)

var errMissingDSN = errors.New("missing TEST_DATABASE_URL")

var (
	testOnce sync.Once
	testConn *sql.DB
	testErr  error
)

func testStore(tb testing.TB) *Store {
	tb.Helper()
	testOnce.Do(func() {
		dsn := os.Getenv("TEST_DATABASE_URL")
		if dsn == "" {
			testErr = errMissingDSN
			return
		}
		ctx := context.Background()
		testConn, testErr = Open(ctx, dsn)
		if testErr != nil {
			return
		}
		testErr = Migrate(ctx, testConn)
	})
	if errors.Is(testErr, errMissingDSN) {
		tb.Skip("set TEST_DATABASE_URL to run postgres integration tests")
	}
	if testErr != nil {
		tb.Fatalf("failed to init test db: %v", testErr)
	}
	return NewStore(testConn)
}

func newUser(t *testing.T, s *Store, credits int) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), uuid.NewString()+"@example.com", "hash", credits)
	require.NoError(t, err)
	return u
}

func TestMessagesHistoryWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 0)

	for i := 0; i < 6; i++ {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderPersona
		}
		_, err := s.Append(ctx, u.ID, "moses", sender, string(rune('a'+i)))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, u.ID, "david", models.SenderUser, "other")
	require.NoError(t, err)

	all, err := s.History(ctx, u.ID, "moses", 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	last, err := s.History(ctx, u.ID, "moses", 4)
	require.NoError(t, err)
	require.Len(t, last, 4)
	assert.Equal(t, all[2:], last)

	turns, err := s.CountUserTurns(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, turns)
}

func TestDebitCreditNeverNegative(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.DebitCredit(ctx, u.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Credits)
}

func TestApplyBillingEventOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 0)

	ev := models.BillingEvent{
		ID:         "evt_" + uuid.NewString(),
		Kind:       models.BillingCreditsPurchased,
		UserID:     u.ID,
		CustomerID: "cus_" + uuid.NewString(),
		Credits:    10,
	}
	applied, err := s.ApplyBillingEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.ApplyBillingEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Credits)
	assert.Equal(t, ev.CustomerID, got.StripeCustomerID)
}

func TestSubscriptionLastWriterWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 0)
	now := time.Now().UTC().Truncate(time.Second)

	wrote, err := s.SaveSubscription(ctx, models.Subscription{
		UserID: u.ID, ProcessorID: "sub_1", Status: models.SubscriptionActive, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.SaveSubscription(ctx, models.Subscription{
		UserID: u.ID, ProcessorID: "sub_1", Status: models.SubscriptionCanceled, UpdatedAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, models.SubscriptionActive, got.Subscription.Status)
}

func TestTakeoverSingleActive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 0)

	_, err := s.StartTakeover(ctx, u.ID, "moses", "alice")
	require.NoError(t, err)
	second, err := s.StartTakeover(ctx, u.ID, "moses", "bob")
	require.NoError(t, err)

	active, err := s.ActiveTakeover(ctx, u.ID, "moses")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "bob", active.OperatorName)

	stopped, err := s.StopTakeover(ctx, u.ID, "moses")
	require.NoError(t, err)
	assert.True(t, stopped)
	_, err = s.ActiveTakeover(ctx, u.ID, "moses")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestUnknownUserIsNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetUser(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = s.GetUser(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestConversations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u := newUser(t, s, 0)

	_, err := s.Append(ctx, u.ID, "ruth", models.SenderUser, "first")
	require.NoError(t, err)
	_, err = s.Append(ctx, u.ID, "moses", models.SenderUser, "hello")
	require.NoError(t, err)
	last, err := s.Append(ctx, u.ID, "moses", models.SenderPersona, "peace")
	require.NoError(t, err)

	list, err := s.Conversations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "moses", list[0].PersonaID)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, last.ID, list[0].LastMessage.ID)
	assert.Equal(t, models.SenderPersona, list[0].LastMessage.Sender)
	assert.Equal(t, "ruth", list[1].PersonaID)

	empty, err := s.Conversations(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
