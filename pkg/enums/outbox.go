package enums

import (
	"fmt"
	"slices"
	"strings"
)

// OutboxAggregateType identifies the entity an outbox row describes.
type OutboxAggregateType string

const (
	AggregateStockAlert       OutboxAggregateType = "stock_alert"
	AggregateStockReservation OutboxAggregateType = "stock_reservation"
)

// OutboxEventType names the integration events published from the outbox.
type OutboxEventType string

const (
	EventStockAlertRaised     OutboxEventType = "stock_alert_raised"
	EventReservationConfirmed OutboxEventType = "reservation_confirmed"
	EventReservationReleased  OutboxEventType = "reservation_released"
)

// each event type belongs to exactly one aggregate
var eventAggregate = map[OutboxEventType]OutboxAggregateType{
	EventStockAlertRaised:     AggregateStockAlert,
	EventReservationConfirmed: AggregateStockReservation,
	EventReservationReleased:  AggregateStockReservation,
}

var aggregateTypes = []OutboxAggregateType{AggregateStockAlert, AggregateStockReservation}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(strings.TrimSpace(value))
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregate[e]
	return ok
}

// Aggregate returns the aggregate type rows of this event must carry, or ""
// for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregate[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(strings.TrimSpace(value))
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

// OutboxDLQErrorReason records why the publisher gave up on a row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: Pub/Sub kept failing until attempts ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row can never publish (no route, bad payload).
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(strings.TrimSpace(value))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid dlq error reason %q", value)
	}
	return r, nil
}
