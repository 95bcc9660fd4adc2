package stockevents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockmonitor/pkg/db/dbtest"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client := dbtest.New(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestRecordValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RecordInput
	}{
		{"missing product", RecordInput{SizeID: uuid.New(), EventType: enums.StockEventUpdated}},
		{"missing size", RecordInput{ProductID: uuid.New(), EventType: enums.StockEventUpdated}},
		{"bad type", RecordInput{ProductID: uuid.New(), SizeID: uuid.New(), EventType: "sold"}},
		{"negative quantity", RecordInput{ProductID: uuid.New(), SizeID: uuid.New(), EventType: enums.StockEventUpdated, Quantity: -1}},
	}
	for _, tc := range cases {
		_, err := svc.Record(ctx, nil, tc.input)
		require.Error(t, err, tc.name)
	}
}

func TestRecordAndListNewestFirstWithCursor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	productID, sizeID := uuid.New(), uuid.New()
	reservationID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	kinds := []enums.StockEventType{enums.StockEventUpdated, enums.StockEventReserved, enums.StockEventReleased}
	for i, kind := range kinds {
		input := RecordInput{
			ProductID:  productID,
			SizeID:     sizeID,
			EventType:  kind,
			Quantity:   i + 1,
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		}
		if kind != enums.StockEventUpdated {
			input.ReservationID = &reservationID
		}
		_, err := svc.Record(ctx, nil, input)
		require.NoError(t, err)
	}
	// unrelated variant
	_, err := svc.Record(ctx, nil, RecordInput{ProductID: uuid.New(), SizeID: uuid.New(), EventType: enums.StockEventUpdated, Quantity: 4})
	require.NoError(t, err)

	page, err := svc.List(ctx, ListInput{ProductID: &productID, SizeID: &sizeID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.Equal(t, enums.StockEventReleased, page.Events[0].EventType)
	require.Equal(t, enums.StockEventReserved, page.Events[1].EventType)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, ListInput{ProductID: &productID, SizeID: &sizeID, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Events, 1)
	require.Equal(t, enums.StockEventUpdated, next.Events[0].EventType)
	require.Empty(t, next.NextCursor)

	byReservation, err := svc.List(ctx, ListInput{ReservationID: &reservationID})
	require.NoError(t, err)
	require.Len(t, byReservation.Events, 2)
}

func TestListRejectsBadCursor(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.List(context.Background(), ListInput{Cursor: "not base64!"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
