package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockmonitor/internal/stock"
	"github.com/angelmondragon/stockmonitor/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

const consumerName = "payments"

var validate = validator.New()

type reservationSettler interface {
	Confirm(ctx context.Context, reservationID uuid.UUID) (*stock.ConfirmResult, error)
	Release(ctx context.Context, reservationID uuid.UUID) (*stock.ReleaseResult, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// OutcomeMessage is published by the payment flow once a checkout's payment
// settles one way or the other.
type OutcomeMessage struct {
	EventID        string      `json:"event_id" validate:"required"`
	PaymentID      string      `json:"payment_id"`
	Outcome        string      `json:"outcome" validate:"required"`
	ReservationIDs []uuid.UUID `json:"reservation_ids" validate:"required,min=1,max=50,dive,required"`
}

// Consumer confirms or releases the reservations named in payment outcomes.
type Consumer struct {
	settler reservationSettler
	guard   idempotencyChecker
	logg    *logger.Logger
}

func NewConsumer(settler reservationSettler, guard idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if settler == nil {
		return nil, errors.New("reservation settler required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{settler: settler, guard: guard, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, sub receiver) error {
	if sub == nil {
		return errors.New("subscription required")
	}
	return sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		msgCtx = c.logg.WithField(msgCtx, "message_id", msg.ID)
		if c.Process(msgCtx, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one raw message and reports whether it should be redelivered.
// Malformed messages are dropped.
func (c *Consumer) Process(ctx context.Context, data []byte) (redeliver bool) {
	var msg OutcomeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "invalid payment outcome payload")
		return false
	}
	if err := validate.Struct(msg); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payment outcome failed validation")
		return false
	}
	outcome, err := enums.ParsePaymentOutcome(msg.Outcome)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "unknown payment outcome")
		return false
	}

	eventID := strings.TrimSpace(msg.EventID)
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":     eventID,
		"payment_id":   msg.PaymentID,
		"outcome":      outcome,
		"reservations": len(msg.ReservationIDs),
	})

	already, err := c.guard.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return true
	}
	if already {
		c.logg.Info(ctx, "payment outcome already processed")
		return false
	}

	if err := c.Settle(ctx, outcome, msg.ReservationIDs); err != nil {
		c.logg.Error(ctx, "payment outcome will be retried", err)
		if delErr := c.guard.Delete(ctx, consumerName, eventID); delErr != nil {
			c.logg.Error(ctx, "failed to clear idempotency mark", delErr)
		}
		return true
	}
	c.logg.Info(ctx, "payment outcome applied")
	return false
}

// Settle confirms every reservation for a successful payment and releases
// them otherwise. Both paths are idempotent, so a redelivered message only
// redoes what is left. Only retryable failures are returned.
func (c *Consumer) Settle(ctx context.Context, outcome enums.PaymentOutcome, reservationIDs []uuid.UUID) error {
	var errs error
	for _, id := range reservationIDs {
		var err error
		if outcome.Settles() {
			_, err = c.settler.Confirm(ctx, id)
		} else {
			_, err = c.settler.Release(ctx, id)
		}
		if err == nil {
			continue
		}

		resCtx := c.logg.WithReservationID(ctx, id.String())
		switch pkgerrors.As(err).Code() {
		case pkgerrors.CodeNotFound, pkgerrors.CodeValidation:
			c.logg.Warn(c.logg.WithField(resCtx, "error", err.Error()), "payment outcome references unknown reservation")
		case pkgerrors.CodeStateConflict:
			// the buyer paid for a hold that already lapsed or was cancelled
			c.logg.Error(resCtx, "payment settled against inactive reservation", err)
		default:
			errs = multierr.Append(errs, fmt.Errorf("reservation %s: %w", id, err))
		}
	}
	return errs
}
