package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockmonitor/api/responses"
	"github.com/angelmondragon/stockmonitor/api/validators"
	"github.com/angelmondragon/stockmonitor/internal/alerts"
	"github.com/angelmondragon/stockmonitor/internal/stock"
	"github.com/angelmondragon/stockmonitor/internal/stockevents"
	"github.com/angelmondragon/stockmonitor/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockmonitor/pkg/errors"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
)

// Stock monitor actions accepted in the request body.
const (
	ActionCheck       = "check"
	ActionReserve     = "reserve"
	ActionRelease     = "release"
	ActionConfirm     = "confirm"
	ActionUpdate      = "update"
	ActionAlert       = "alert"
	ActionAcknowledge = "acknowledge"
	ActionConfigure   = "configure"
	ActionEvents      = "events"
)

type alertEngine interface {
	Scan(ctx context.Context, threshold *int) (*alerts.ScanResult, error)
	Acknowledge(ctx context.Context, alertID uuid.UUID) (*alerts.AcknowledgeResult, error)
	SetConfig(ctx context.Context, input alerts.ConfigInput) (*models.AlertConfig, error)
}

type eventLog interface {
	List(ctx context.Context, input stockevents.ListInput) (*stockevents.EventList, error)
}

type actionRequest struct {
	Action string `json:"action"`
}

type checkRequest struct {
	Action    string  `json:"action"`
	ProductID *string `json:"product_id" validate:"omitempty,uuid"`
	SizeID    *string `json:"size_id" validate:"omitempty,uuid"`
}

type reserveRequest struct {
	Action    string `json:"action"`
	ProductID string `json:"product_id" validate:"required,uuid"`
	SizeID    string `json:"size_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	UserID    string `json:"user_id" validate:"required,uuid"`
}

type reservationRequest struct {
	Action        string `json:"action"`
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
}

type updateRequest struct {
	Action    string  `json:"action"`
	ProductID string  `json:"product_id" validate:"required,uuid"`
	SizeID    string  `json:"size_id" validate:"required,uuid"`
	Quantity  *int    `json:"quantity" validate:"required,gte=0"`
	UserID    *string `json:"user_id" validate:"omitempty,uuid"`
}

type alertRequest struct {
	Action    string `json:"action"`
	Threshold *int   `json:"threshold" validate:"omitempty,gte=0"`
}

type acknowledgeRequest struct {
	Action  string `json:"action"`
	AlertID string `json:"alert_id" validate:"required,uuid"`
}

type configureRequest struct {
	Action            string `json:"action"`
	ProductID         string `json:"product_id" validate:"required,uuid"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"required,gte=0"`
	CriticalThreshold *int   `json:"critical_threshold" validate:"required,gte=0"`
}

type eventsRequest struct {
	Action        string  `json:"action"`
	ProductID     *string `json:"product_id" validate:"omitempty,uuid"`
	SizeID        *string `json:"size_id" validate:"omitempty,uuid"`
	ReservationID *string `json:"reservation_id" validate:"omitempty,uuid"`
	Limit         int     `json:"limit" validate:"gte=0,lte=100"`
	Cursor        string  `json:"cursor"`
}

// StockMonitor serves POST /api/v1/stock-monitor; the body's action field
// selects the operation.
func StockMonitor(stockSvc stock.Service, engine alertEngine, events eventLog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := validators.ReadBody(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var envelope actionRequest
		if err := json.Unmarshal(body, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "action", envelope.Action)
		}

		status := http.StatusOK
		var data any
		switch envelope.Action {
		case ActionCheck:
			data, err = handleCheck(ctx, stockSvc, body)
		case ActionReserve:
			data, err = handleReserve(ctx, stockSvc, body)
			status = http.StatusCreated
		case ActionRelease:
			data, err = handleRelease(ctx, stockSvc, body)
		case ActionConfirm:
			data, err = handleConfirm(ctx, stockSvc, body)
		case ActionUpdate:
			data, err = handleUpdate(ctx, stockSvc, body)
		case ActionAlert:
			data, err = handleAlert(ctx, engine, body)
		case ActionAcknowledge:
			data, err = handleAcknowledge(ctx, engine, body)
		case ActionConfigure:
			data, err = handleConfigure(ctx, engine, body)
		case ActionEvents:
			data, err = handleEvents(ctx, events, body)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported action %q", envelope.Action)).
				WithDetails(map[string]any{"supported": []string{
					ActionCheck, ActionReserve, ActionRelease, ActionConfirm, ActionUpdate,
					ActionAlert, ActionAcknowledge, ActionConfigure, ActionEvents,
				}})
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, data)
	}
}

func handleCheck(ctx context.Context, svc stock.Service, body []byte) (any, error) {
	var req checkRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return svc.Check(ctx, stock.CheckInput{
		ProductID: optionalUUID(req.ProductID),
		SizeID:    optionalUUID(req.SizeID),
	})
}

func handleReserve(ctx context.Context, svc stock.Service, body []byte) (any, error) {
	var req reserveRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return svc.Reserve(ctx, stock.ReserveInput{
		ProductID: uuid.MustParse(req.ProductID),
		SizeID:    uuid.MustParse(req.SizeID),
		Quantity:  req.Quantity,
		UserID:    uuid.MustParse(req.UserID),
	})
}

func handleRelease(ctx context.Context, svc stock.Service, body []byte) (any, error) {
	var req reservationRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return svc.Release(ctx, uuid.MustParse(req.ReservationID))
}

func handleConfirm(ctx context.Context, svc stock.Service, body []byte) (any, error) {
	var req reservationRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return svc.Confirm(ctx, uuid.MustParse(req.ReservationID))
}

func handleUpdate(ctx context.Context, svc stock.Service, body []byte) (any, error) {
	var req updateRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return svc.Update(ctx, stock.UpdateInput{
		ProductID: uuid.MustParse(req.ProductID),
		SizeID:    uuid.MustParse(req.SizeID),
		Quantity:  *req.Quantity,
		UserID:    optionalUUID(req.UserID),
	})
}

func handleAlert(ctx context.Context, engine alertEngine, body []byte) (any, error) {
	var req alertRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return engine.Scan(ctx, req.Threshold)
}

func handleAcknowledge(ctx context.Context, engine alertEngine, body []byte) (any, error) {
	var req acknowledgeRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return engine.Acknowledge(ctx, uuid.MustParse(req.AlertID))
}

func handleConfigure(ctx context.Context, engine alertEngine, body []byte) (any, error) {
	var req configureRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	cfg, err := engine.SetConfig(ctx, alerts.ConfigInput{
		ProductID:         uuid.MustParse(req.ProductID),
		LowStockThreshold: *req.LowStockThreshold,
		CriticalThreshold: *req.CriticalThreshold,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"config": cfg}, nil
}

func handleEvents(ctx context.Context, events eventLog, body []byte) (any, error) {
	var req eventsRequest
	if err := validators.DecodeJSON(body, &req); err != nil {
		return nil, err
	}
	return events.List(ctx, stockevents.ListInput{
		ProductID:     optionalUUID(req.ProductID),
		SizeID:        optionalUUID(req.SizeID),
		ReservationID: optionalUUID(req.ReservationID),
		Limit:         req.Limit,
		Cursor:        req.Cursor,
	})
}

// optionalUUID expects a value already checked by the uuid validator.
func optionalUUID(value *string) *uuid.UUID {
	if value == nil || *value == "" {
		return nil
	}
	id := uuid.MustParse(*value)
	return &id
}
