package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/pkg/db/dbtest"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	"github.com/angelmondragon/stockmonitor/pkg/outbox/payloads"
)

func TestServiceEmitWritesEnvelope(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)

	alertID := uuid.New()
	userID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventStockAlertRaised,
			AggregateType: enums.AggregateStockAlert,
			AggregateID:   alertID,
			Actor:         &ActorRef{UserID: userID},
			Data:          payloads.StockAlertRaisedEvent{AlertID: alertID, CurrentStock: 0},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, alertID, rows[0].AggregateID)
	require.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, PayloadVersion, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.Equal(t, enums.EventStockAlertRaised, envelope.EventType)
	require.Equal(t, EnvelopeSource, envelope.Source)
	require.Equal(t, alertID.String(), envelope.Subject)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, userID, envelope.Actor.UserID)

	var data payloads.StockAlertRaisedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, alertID, data.AlertID)
}

func TestServiceEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateStockReservation,
			AggregateID:   uuid.New(),
			Data:          payloads.ReservationReleasedEvent{Quantity: 1},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	backlog, err := NewRepository(client.DB()).Backlog(context.Background())
	require.NoError(t, err)
	require.Zero(t, backlog.Pending)
	require.Nil(t, backlog.Oldest)
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return repo.Insert(tx, models.OutboxEvent{
				ID:            ids[i],
				EventType:     enums.EventStockAlertRaised,
				AggregateType: enums.AggregateStockAlert,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{}`),
				CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			})
		}))
	}

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, ids[0], rows[0].ID)

		require.NoError(t, repo.MarkPublishedTx(tx, ids[0]))
		require.NoError(t, repo.MarkFailedTx(tx, ids[1], errors.New("unavailable")))
		return repo.MarkTerminalTx(tx, ids[2], errors.New("bad payload"), 3)
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, ids[1], rows[0].ID)
		require.Equal(t, 1, rows[0].AttemptCount)
		require.NotNil(t, rows[0].LastError)
		return nil
	}))

	var deleted int64
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(ctx, tx, base.Add(time.Hour), 3, 1)
		return err
	}))
	require.Equal(t, int64(1), deleted, "limit caps a single pass")

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(ctx, tx, base.Add(time.Hour), 3, 0)
		return err
	}))
	require.Equal(t, int64(1), deleted)

	backlog, err := repo.Backlog(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), backlog.Pending)
	require.NotNil(t, backlog.Oldest)
	require.True(t, backlog.Oldest.Equal(base.Add(time.Minute)), "oldest pending is ids[1], got %s", backlog.Oldest)
}

func TestDLQRepositoryTruncatesErrorMessage(t *testing.T) {
	client := dbtest.New(t)
	dlq := NewDLQRepository(client.DB())

	long := make([]byte, maxDLQErrorLen+100)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventStockAlertRaised,
			AggregateType: enums.AggregateStockAlert,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
		})
	}))

	row, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Len(t, *row.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	count, err := dlq.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.Error(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{ErrorReason: enums.OutboxDLQReasonMaxAttempts})
	}))
}

func TestClipUTF8KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "abc", clipUTF8("abc", 10))
	// "é" is two bytes; a 2-byte limit on "aé" must drop the whole rune
	require.Equal(t, "a", clipUTF8("aé", 2))
	require.Equal(t, "aé", clipUTF8("aéb", 3))
}

func TestServiceEmitRejectsIncompleteEvents(t *testing.T) {
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)
	valid := DomainEvent{
		EventType:     enums.EventStockAlertRaised,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   uuid.New(),
		Data:          payloads.StockAlertRaisedEvent{},
	}

	cases := map[string]func(e *DomainEvent){
		"unknown type":      func(e *DomainEvent) { e.EventType = "stock_sold" },
		"unknown aggregate": func(e *DomainEvent) { e.AggregateType = "order" },
		"nil aggregate":     func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"nil data":          func(e *DomainEvent) { e.Data = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			event := valid
			mutate(&event)
			require.Error(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			}))
		})
	}
}

func TestEnvelopeDecode(t *testing.T) {
	var out payloads.StockAlertRaisedEvent
	require.Error(t, PayloadEnvelope{}.Decode(&out))
	require.Error(t, PayloadEnvelope{Data: json.RawMessage(" null ")}.Decode(&out))
	require.NoError(t, PayloadEnvelope{Data: json.RawMessage(`{"current_stock":3}`)}.Decode(&out))
	require.Equal(t, 3, out.CurrentStock)
}
