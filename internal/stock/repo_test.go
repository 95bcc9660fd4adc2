package stock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockmonitor/pkg/db/dbtest"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
)

func TestRecordRepositoryUpsertAndDecrement(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRecordRepository(client.DB())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	productID, sizeID := uuid.New(), uuid.New()

	record, err := repo.Upsert(ctx, productID, sizeID, 10, now)
	require.NoError(t, err)
	require.Equal(t, 10, record.Quantity)

	record, err = repo.Upsert(ctx, productID, sizeID, 4, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 4, record.Quantity)

	ok, err := repo.Decrement(ctx, productID, sizeID, 3, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Decrement(ctx, productID, sizeID, 2, now)
	require.NoError(t, err)
	require.False(t, ok, "decrement must not drive quantity negative")

	record, err = repo.Get(ctx, productID, sizeID)
	require.NoError(t, err)
	require.Equal(t, 1, record.Quantity)
}

func TestRecordRepositoryListFilters(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRecordRepository(client.DB())
	ctx := context.Background()
	now := time.Now().UTC()

	productA, productB := uuid.New(), uuid.New()
	sizeS, sizeM := uuid.New(), uuid.New()
	for _, seed := range []struct {
		product, size uuid.UUID
		qty           int
	}{
		{productA, sizeS, 3},
		{productA, sizeM, 12},
		{productB, sizeS, 0},
	} {
		_, err := repo.Upsert(ctx, seed.product, seed.size, seed.qty, now)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byProduct, err := repo.List(ctx, RecordFilter{ProductID: &productA})
	require.NoError(t, err)
	require.Len(t, byProduct, 2)

	bySize, err := repo.List(ctx, RecordFilter{SizeID: &sizeS})
	require.NoError(t, err)
	require.Len(t, bySize, 2)

	ceiling := 5
	low, err := repo.List(ctx, RecordFilter{MaxQuantity: &ceiling})
	require.NoError(t, err)
	require.Len(t, low, 2)
}

func TestReservationRepositorySumsAndTransitions(t *testing.T) {
	client := dbtest.New(t)
	records := NewRecordRepository(client.DB())
	repo := NewReservationRepository(client.DB())
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	productID, sizeID := uuid.New(), uuid.New()

	_, err := records.Upsert(ctx, productID, sizeID, 20, now)
	require.NoError(t, err)

	mk := func(qty int, status enums.ReservationStatus, expiresAt time.Time) models.StockReservation {
		r := models.StockReservation{
			ID:        uuid.New(),
			ProductID: productID,
			SizeID:    sizeID,
			Quantity:  qty,
			UserID:    uuid.New(),
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: expiresAt,
		}
		require.NoError(t, repo.Create(ctx, &r))
		return r
	}
	live := mk(3, enums.ReservationStatusActive, now.Add(10*time.Minute))
	mk(4, enums.ReservationStatusActive, now.Add(-time.Second))
	mk(5, enums.ReservationStatusConfirmed, now.Add(10*time.Minute))

	sum, err := repo.SumActive(ctx, productID, sizeID, now)
	require.NoError(t, err)
	require.Equal(t, 3, sum)

	totals, err := repo.SumActiveByVariant(ctx, RecordFilter{}, now)
	require.NoError(t, err)
	require.Equal(t, 3, totals[VariantKey{ProductID: productID, SizeID: sizeID}])

	applied, err := repo.Transition(ctx, live.ID, enums.ReservationStatusActive, enums.ReservationStatusCancelled, now)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.Transition(ctx, live.ID, enums.ReservationStatusActive, enums.ReservationStatusConfirmed, now)
	require.NoError(t, err)
	require.False(t, applied, "second transition out of active must not apply")

	expired, err := repo.ExpireStale(ctx, now, 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	expired, err = repo.ExpireStale(ctx, now, 100)
	require.NoError(t, err)
	require.Zero(t, expired)
}
