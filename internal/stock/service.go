package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockmonitor/internal/stockevents"
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/metrics"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
	"github.com/angelmondragon/stockmonitor/pkg/outbox/payloads"
)

const defaultHoldDuration = 15 * time.Minute

// Service is the reservation API over the stock ledger.
type Service interface {
	Check(ctx context.Context, input CheckInput) ([]StockView, error)
	Reserve(ctx context.Context, input ReserveInput) (*ReservationResult, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*ReleaseResult, error)
	Confirm(ctx context.Context, reservationID uuid.UUID) (*ConfirmResult, error)
	Update(ctx context.Context, input UpdateInput) (*UpdateResult, error)
}

// ServiceParams carries the collaborators of the stock service. Outbox and
// Metrics are optional.
type ServiceParams struct {
	Records      RecordRepository
	Reservations ReservationRepository
	TxRunner     txRunner
	Events       EventRecorder
	Alerts       AlertEvaluator
	Outbox       outboxPublisher
	Config       config.ReservationConfig
	// PublishReservationEvents enables outbox rows for release/confirm.
	PublishReservationEvents bool
	Metrics                  *metrics.StockMetrics
	Logger                   *logger.Logger
	Now                      func() time.Time
}

type service struct {
	records       RecordRepository
	reservations  ReservationRepository
	calculator    *Calculator
	tx            txRunner
	events        EventRecorder
	alerts        AlertEvaluator
	outbox        outboxPublisher
	publishEvents bool
	hold          time.Duration
	retry         retryPolicy
	metrics       *metrics.StockMetrics
	logg          *logger.Logger
	now           func() time.Time
}

// NewService builds the stock service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Records == nil {
		return nil, fmt.Errorf("stock record repository required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("stock event recorder required")
	}
	if params.Alerts == nil {
		return nil, fmt.Errorf("alert evaluator required")
	}
	if params.PublishReservationEvents && params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required to publish reservation events")
	}

	hold := params.Config.HoldDuration
	if hold <= 0 {
		hold = defaultHoldDuration
	}
	maxRetries := params.Config.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &service{
		records:       params.Records,
		reservations:  params.Reservations,
		calculator:    NewCalculator(params.Reservations),
		tx:            params.TxRunner,
		events:        params.Events,
		alerts:        params.Alerts,
		outbox:        params.Outbox,
		publishEvents: params.PublishReservationEvents,
		hold:          hold,
		retry: retryPolicy{
			base:       params.Config.RetryBaseBackoff,
			jitter:     params.Config.RetryMaxJitter,
			maxRetries: maxRetries,
		},
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

func (s *service) Check(ctx context.Context, input CheckInput) (views []StockView, err error) {
	defer s.observe("check", time.Now(), &err)

	filter := RecordFilter{ProductID: input.ProductID, SizeID: input.SizeID}
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stock records")
	}
	views, err = s.calculator.ForRecords(ctx, nil, records, filter, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute availability")
	}
	return views, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (result *ReservationResult, err error) {
	defer s.observe("reserve", time.Now(), &err)

	if input.ProductID == uuid.Nil || input.SizeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id and size_id are required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	err = s.inTx(ctx, "reserve", func(tx *gorm.DB) error {
		now := s.now()
		record, err := s.records.WithTx(tx).GetForUpdate(ctx, input.ProductID, input.SizeID)
		if err != nil {
			return s.lookupError(err, "stock record not found", "load stock record")
		}

		availability, err := s.calculator.ForVariant(ctx, tx, *record, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute availability")
		}
		if !availability.CanReserve(input.Quantity) {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"available": availability.Available,
					"requested": input.Quantity,
				})
		}

		reservation := &models.StockReservation{
			ID:        uuid.New(),
			ProductID: input.ProductID,
			SizeID:    input.SizeID,
			Quantity:  input.Quantity,
			UserID:    input.UserID,
			Status:    enums.ReservationStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(s.hold),
		}
		if err := s.reservations.WithTx(tx).Create(ctx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reservation")
		}

		userID := input.UserID
		reservationID := reservation.ID
		if _, err := s.events.Record(ctx, tx, stockevents.RecordInput{
			ProductID:     input.ProductID,
			SizeID:        input.SizeID,
			EventType:     enums.StockEventReserved,
			Quantity:      input.Quantity,
			UserID:        &userID,
			ReservationID: &reservationID,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reserved event")
		}

		result = &ReservationResult{
			ReservationID: reservation.ID,
			ExpiresAt:     reservation.ExpiresAt,
			Message:       fmt.Sprintf("reserved %d units until %s", input.Quantity, reservation.ExpiresAt.Format(time.RFC3339)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithVariant(ctx, input.ProductID.String(), input.SizeID.String())
		logCtx = s.logg.WithReservationID(logCtx, result.ReservationID.String())
		s.logg.Info(s.logg.WithField(logCtx, "quantity", input.Quantity), "stock reserved")
	}
	return result, nil
}

// Release cancels an active hold. Releasing a hold that is already confirmed,
// cancelled or expired is a successful no-op and appends no event.
func (s *service) Release(ctx context.Context, reservationID uuid.UUID) (result *ReleaseResult, err error) {
	defer s.observe("release", time.Now(), &err)

	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation_id is required")
	}

	err = s.inTx(ctx, "release", func(tx *gorm.DB) error {
		now := s.now()
		repo := s.reservations.WithTx(tx)
		reservation, err := repo.FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return s.lookupError(err, "reservation not found", "load reservation")
		}

		if !reservation.CountsAgainstStock(now) {
			status := reservation.Status
			if status == enums.ReservationStatusActive {
				// past expiry but not yet swept
				if _, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusExpired, now); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire reservation")
				}
				status = enums.ReservationStatusExpired
			}
			result = &ReleaseResult{
				ReservationID:   reservation.ID,
				Status:          status,
				AlreadyTerminal: true,
				Message:         fmt.Sprintf("reservation already %s", status),
			}
			return nil
		}

		applied, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusCancelled, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel reservation")
		}
		if !applied {
			current, err := repo.FindByID(ctx, reservation.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload reservation")
			}
			result = &ReleaseResult{
				ReservationID:   current.ID,
				Status:          current.Status,
				AlreadyTerminal: true,
				Message:         fmt.Sprintf("reservation already %s", current.Status),
			}
			return nil
		}

		userID := reservation.UserID
		if _, err := s.events.Record(ctx, tx, stockevents.RecordInput{
			ProductID:     reservation.ProductID,
			SizeID:        reservation.SizeID,
			EventType:     enums.StockEventReleased,
			Quantity:      reservation.Quantity,
			UserID:        &userID,
			ReservationID: &reservation.ID,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record released event")
		}

		if s.publishEvents {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationReleased,
				AggregateType: enums.AggregateStockReservation,
				AggregateID:   reservation.ID,
				Actor:         &outbox.ActorRef{UserID: reservation.UserID},
				OccurredAt:    now,
				Data: payloads.ReservationReleasedEvent{
					ReservationID: reservation.ID,
					ProductID:     reservation.ProductID,
					SizeID:        reservation.SizeID,
					UserID:        reservation.UserID,
					Quantity:      reservation.Quantity,
					ReleasedAt:    now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit reservation released")
			}
		}

		result = &ReleaseResult{
			ReservationID: reservation.ID,
			Status:        enums.ReservationStatusCancelled,
			Message:       fmt.Sprintf("released %d units", reservation.Quantity),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Confirm converts an active hold into a permanent deduction of physical stock.
func (s *service) Confirm(ctx context.Context, reservationID uuid.UUID) (result *ConfirmResult, err error) {
	defer s.observe("confirm", time.Now(), &err)

	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation_id is required")
	}

	err = s.inTx(ctx, "confirm", func(tx *gorm.DB) error {
		now := s.now()
		reservations := s.reservations.WithTx(tx)
		records := s.records.WithTx(tx)

		// the stock row is locked before the reservation row, matching reserve
		located, err := reservations.FindByID(ctx, reservationID)
		if err != nil {
			return s.lookupError(err, "reservation not found", "load reservation")
		}
		if _, err := records.GetForUpdate(ctx, located.ProductID, located.SizeID); err != nil {
			return s.lookupError(err, "stock record not found", "lock stock record")
		}
		reservation, err := reservations.FindByIDForUpdate(ctx, reservationID)
		if err != nil {
			return s.lookupError(err, "reservation not found", "load reservation")
		}

		switch {
		case reservation.Status == enums.ReservationStatusConfirmed:
			current, err := records.Get(ctx, reservation.ProductID, reservation.SizeID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock record")
			}
			result = &ConfirmResult{
				ReservationID:     reservation.ID,
				Status:            reservation.Status,
				AlreadyConfirmed:  true,
				RemainingQuantity: current.Quantity,
				Alerts:            []models.StockAlert{},
				Message:           "reservation already confirmed",
			}
			return nil
		case reservation.Status.IsTerminal():
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("reservation is %s", reservation.Status)).
				WithDetails(map[string]any{"status": reservation.Status})
		case !reservation.CountsAgainstStock(now):
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation has expired").
				WithDetails(map[string]any{"status": enums.ReservationStatusExpired, "expires_at": reservation.ExpiresAt})
		}

		decremented, err := records.Decrement(ctx, reservation.ProductID, reservation.SizeID, reservation.Quantity, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
		}
		if !decremented {
			current, err := records.Get(ctx, reservation.ProductID, reservation.SizeID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock record")
			}
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock to confirm reservation").
				WithDetails(map[string]any{
					"available": current.Quantity,
					"requested": reservation.Quantity,
				})
		}

		applied, err := reservations.Transition(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusConfirmed, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm reservation")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation changed state during confirmation")
		}

		userID := reservation.UserID
		if _, err := s.events.Record(ctx, tx, stockevents.RecordInput{
			ProductID:     reservation.ProductID,
			SizeID:        reservation.SizeID,
			EventType:     enums.StockEventConfirmed,
			Quantity:      reservation.Quantity,
			UserID:        &userID,
			ReservationID: &reservation.ID,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record confirmed event")
		}

		updated, err := records.Get(ctx, reservation.ProductID, reservation.SizeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock record")
		}

		if s.publishEvents {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationConfirmed,
				AggregateType: enums.AggregateStockReservation,
				AggregateID:   reservation.ID,
				Actor:         &outbox.ActorRef{UserID: reservation.UserID},
				OccurredAt:    now,
				Data: payloads.ReservationConfirmedEvent{
					ReservationID:     reservation.ID,
					ProductID:         reservation.ProductID,
					SizeID:            reservation.SizeID,
					UserID:            reservation.UserID,
					Quantity:          reservation.Quantity,
					RemainingQuantity: updated.Quantity,
					ConfirmedAt:       now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit reservation confirmed")
			}
		}

		alerts, err := s.alerts.EvaluateVariant(ctx, tx, *updated)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "evaluate alerts")
		}

		result = &ConfirmResult{
			ReservationID:     reservation.ID,
			Status:            enums.ReservationStatusConfirmed,
			RemainingQuantity: updated.Quantity,
			Alerts:            alerts,
			Message:           fmt.Sprintf("confirmed %d units", reservation.Quantity),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update overwrites the physical quantity. It is a restock or correction
// tool, never a sale path: sales go through Confirm.
func (s *service) Update(ctx context.Context, input UpdateInput) (result *UpdateResult, err error) {
	defer s.observe("update", time.Now(), &err)

	if input.ProductID == uuid.Nil || input.SizeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id and size_id are required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be zero or greater")
	}

	var previous *int
	err = s.inTx(ctx, "update", func(tx *gorm.DB) error {
		now := s.now()
		records := s.records.WithTx(tx)

		existing, err := records.GetForUpdate(ctx, input.ProductID, input.SizeID)
		switch {
		case err == nil:
			previous = &existing.Quantity
		case errors.Is(err, gorm.ErrRecordNotFound):
			previous = nil
		default:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock stock record")
		}

		record, err := records.Upsert(ctx, input.ProductID, input.SizeID, input.Quantity, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update stock record")
		}

		if _, err := s.events.Record(ctx, tx, stockevents.RecordInput{
			ProductID:  input.ProductID,
			SizeID:     input.SizeID,
			EventType:  enums.StockEventUpdated,
			Quantity:   input.Quantity,
			UserID:     input.UserID,
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record updated event")
		}

		alerts, err := s.alerts.EvaluateVariant(ctx, tx, *record)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "evaluate alerts")
		}

		availability, err := s.calculator.ForVariant(ctx, tx, *record, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute availability")
		}

		result = &UpdateResult{
			Stock:   newStockView(*record, availability),
			Alerts:  alerts,
			Message: fmt.Sprintf("stock set to %d", input.Quantity),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		fields := map[string]any{"quantity": input.Quantity, "alerts": len(result.Alerts)}
		if previous != nil {
			fields["previous_quantity"] = *previous
		}
		logCtx := s.logg.WithVariant(ctx, input.ProductID.String(), input.SizeID.String())
		s.logg.Info(s.logg.WithFields(logCtx, fields), "stock updated")
	}
	return result, nil
}

func (s *service) lookupError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, internalMsg)
}

func (s *service) observe(action string, started time.Time, errp *error) {
	s.metrics.ObserveOperation(action, outcomeFor(*errp), time.Since(started))
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeInsufficientStock:
		return metrics.OutcomeInsufficient
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	case pkgerrors.CodeConcurrentWrite, pkgerrors.CodeStateConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeValidation:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
