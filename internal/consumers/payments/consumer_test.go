package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockmonitor/internal/stock"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

type stubSettler struct {
	mu         sync.Mutex
	confirmed  []uuid.UUID
	released   []uuid.UUID
	confirmErr map[uuid.UUID]error
	releaseErr map[uuid.UUID]error
}

func (s *stubSettler) Confirm(ctx context.Context, id uuid.UUID) (*stock.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.confirmErr[id]; err != nil {
		return nil, err
	}
	s.confirmed = append(s.confirmed, id)
	return &stock.ConfirmResult{ReservationID: id}, nil
}

func (s *stubSettler) Release(ctx context.Context, id uuid.UUID) (*stock.ReleaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.releaseErr[id]; err != nil {
		return nil, err
	}
	s.released = append(s.released, id)
	return &stock.ReleaseResult{ReservationID: id}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "stockmon:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func newTestConsumer(t *testing.T, settler *stubSettler) (*Consumer, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	guard, err := NewProcessedGuard(store, time.Hour)
	require.NoError(t, err)
	consumer, err := NewConsumer(settler, guard, logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard}))
	require.NoError(t, err)
	return consumer, store
}

func outcomePayload(t *testing.T, eventID, outcome string, ids ...uuid.UUID) []byte {
	t.Helper()
	payload, err := json.Marshal(OutcomeMessage{
		EventID:        eventID,
		PaymentID:      "pay_123",
		Outcome:        outcome,
		ReservationIDs: ids,
	})
	require.NoError(t, err)
	return payload
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	guard, err := NewProcessedGuard(newMemoryStore(), 0)
	require.NoError(t, err)

	_, err = NewConsumer(nil, guard, logg)
	require.Error(t, err)
	_, err = NewConsumer(&stubSettler{}, nil, logg)
	require.Error(t, err)
	_, err = NewConsumer(&stubSettler{}, guard, nil)
	require.Error(t, err)
}

func TestProcessConfirmsOnSucceededPayment(t *testing.T) {
	settler := &stubSettler{}
	consumer, _ := newTestConsumer(t, settler)
	first, second := uuid.New(), uuid.New()

	redeliver := consumer.Process(context.Background(), outcomePayload(t, "evt-1", "succeeded", first, second))

	require.False(t, redeliver)
	require.Equal(t, []uuid.UUID{first, second}, settler.confirmed)
	require.Empty(t, settler.released)
}

func TestProcessReleasesOnFailedPayment(t *testing.T) {
	for _, outcome := range []string{"failed", "cancelled", "TIMED_OUT"} {
		t.Run(outcome, func(t *testing.T) {
			settler := &stubSettler{}
			consumer, _ := newTestConsumer(t, settler)
			id := uuid.New()

			require.False(t, consumer.Process(context.Background(), outcomePayload(t, "evt-"+outcome, outcome, id)))
			require.Equal(t, []uuid.UUID{id}, settler.released)
			require.Empty(t, settler.confirmed)
		})
	}
}

func TestProcessSkipsDuplicateEvent(t *testing.T) {
	settler := &stubSettler{}
	consumer, _ := newTestConsumer(t, settler)
	id := uuid.New()
	payload := outcomePayload(t, "evt-dup", "succeeded", id)

	require.False(t, consumer.Process(context.Background(), payload))
	require.False(t, consumer.Process(context.Background(), payload))
	require.Len(t, settler.confirmed, 1)
}

func TestProcessDropsMalformedMessages(t *testing.T) {
	settler := &stubSettler{}
	consumer, store := newTestConsumer(t, settler)

	cases := map[string][]byte{
		"not json":        []byte("{"),
		"missing event":   outcomePayload(t, "", "succeeded", uuid.New()),
		"no reservations": outcomePayload(t, "evt-empty", "succeeded"),
		"unknown outcome": outcomePayload(t, "evt-unknown", "refunded", uuid.New()),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			require.False(t, consumer.Process(context.Background(), payload))
		})
	}
	require.Empty(t, settler.confirmed)
	require.Empty(t, store.data)
}

func TestProcessAcksPermanentFailures(t *testing.T) {
	missing, expired, ok := uuid.New(), uuid.New(), uuid.New()
	settler := &stubSettler{confirmErr: map[uuid.UUID]error{
		missing: pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found"),
		expired: pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is expired"),
	}}
	consumer, _ := newTestConsumer(t, settler)

	redeliver := consumer.Process(context.Background(), outcomePayload(t, "evt-perm", "succeeded", missing, expired, ok))

	require.False(t, redeliver)
	require.Equal(t, []uuid.UUID{ok}, settler.confirmed)
}

func TestProcessRedeliversRetryableFailures(t *testing.T) {
	busy, ok := uuid.New(), uuid.New()
	settler := &stubSettler{confirmErr: map[uuid.UUID]error{
		busy: pkgerrors.New(pkgerrors.CodeConcurrentWrite, "concurrent update"),
	}}
	consumer, store := newTestConsumer(t, settler)
	payload := outcomePayload(t, "evt-retry", "succeeded", busy, ok)

	require.True(t, consumer.Process(context.Background(), payload))
	require.Equal(t, []uuid.UUID{ok}, settler.confirmed)
	require.Empty(t, store.data, "processed mark must be cleared for redelivery")

	delete(settler.confirmErr, busy)
	require.False(t, consumer.Process(context.Background(), payload))
	require.Contains(t, settler.confirmed, busy)
}

func TestSettleCombinesRetryableErrors(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	settler := &stubSettler{releaseErr: map[uuid.UUID]error{
		a: errors.New("connection reset"),
		b: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
	}}
	consumer, _ := newTestConsumer(t, settler)

	err := consumer.Settle(context.Background(), "failed", []uuid.UUID{a, b})
	require.Error(t, err)
	require.Contains(t, err.Error(), a.String())
	require.Contains(t, err.Error(), b.String())
}

func TestProcessedGuardKeys(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewProcessedGuard(store, time.Minute)
	require.NoError(t, err)

	seen, err := guard.CheckAndMarkProcessed(context.Background(), "payments", "evt-1")
	require.NoError(t, err)
	require.False(t, seen)
	require.Contains(t, store.data, "stockmon:idempotency:evt:processed:payments:evt-1")

	seen, err = guard.CheckAndMarkProcessed(context.Background(), "payments", "evt-1")
	require.NoError(t, err)
	require.True(t, seen)

	require.NoError(t, guard.Delete(context.Background(), "payments", "evt-1"))
	require.Empty(t, store.data)

	_, err = guard.CheckAndMarkProcessed(context.Background(), "payments", " ")
	require.Error(t, err)

	_, err = NewProcessedGuard(nil, time.Minute)
	require.Error(t, err)
}
