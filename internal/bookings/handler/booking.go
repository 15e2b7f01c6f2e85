package handler

import (
	"context"
	"net/http"
	"time"

	"parkline/internal/bookings/service"
	apperrors "parkline/pkg/errors"
	httputil "parkline/pkg/http"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// ListByUnit accepts an optional ?from=&to= window (RFC 3339) plus ?limit= and ?offset=.
func (h *BookingHandler) ListByUnit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByUnit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByUnit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	bookings, err := h.service.ListByUnit(r.Context(), ps.ByName("id"), window, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByUnit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePage(w, bookings, limit, offset); err != nil {
		h.log.Error("failed to write page response", "handler", "ListByUnit", "operation", "WritePage", "error", err)
	}
}

func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "CheckIn", h.service.CheckIn)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Complete", h.service.Complete)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Cancel", h.service.Cancel)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, ps httprouter.Params, name string, fn func(context.Context, string) (*model.Booking, error)) {
	booking, err := fn(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func parseWindow(r *http.Request) (*model.TimeWindow, error) {
	query := r.URL.Query()
	fromStr, toStr := query.Get("from"), query.Get("to")
	if fromStr == "" && toStr == "" {
		return nil, nil
	}
	if fromStr == "" || toStr == "" {
		return nil, apperrors.InvalidInput("both 'from' and 'to' are required to filter by window")
	}

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid 'from' parameter, expected RFC 3339: " + fromStr)
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid 'to' parameter, expected RFC 3339: " + toStr)
	}
	return &model.TimeWindow{Start: from.UTC(), End: to.UTC()}, nil
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/bookings/:id", h.GetByID)
	router.POST("/api/v1/bookings/:id/check-in", h.CheckIn)
	router.POST("/api/v1/bookings/:id/complete", h.Complete)
	router.POST("/api/v1/bookings/:id/cancel", h.Cancel)
	router.GET("/api/v1/units/:id/bookings", h.ListByUnit)
}
