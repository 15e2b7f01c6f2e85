package handler

import (
	"net/http"

	"parkline/internal/units/service"
	httputil "parkline/pkg/http"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type UnitHandler struct {
	service service.UnitService
	log     *logger.Logger
}

func NewUnitHandler(service service.UnitService, log *logger.Logger) *UnitHandler {
	return &UnitHandler{
		service: service,
		log:     log,
	}
}

func (h *UnitHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	unit, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, unit); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// ListByPool accepts ?status=, ?limit= and ?offset=.
func (h *UnitHandler) ListByPool(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByPool", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var status *model.UnitStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.UnitStatus(raw)
		status = &s
	}

	units, err := h.service.ListByPool(r.Context(), ps.ByName("pool"), status, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListByPool", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePage(w, units, limit, offset); err != nil {
		h.log.Error("failed to write page response", "handler", "ListByPool", "operation", "WritePage", "error", err)
	}
}

func (h *UnitHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update model.UnitStatusUpdate
	if err := httputil.DecodeJSON(r, &update); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateStatus", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	unit, err := h.service.UpdateStatus(r.Context(), ps.ByName("id"), &update)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "UpdateStatus", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, unit); err != nil {
		h.log.Error("failed to write success response", "handler", "UpdateStatus", "operation", "WriteSuccess", "error", err)
	}
}

func (h *UnitHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/pools/:pool/units", h.ListByPool)
	router.GET("/api/v1/units/:id", h.GetByID)
	router.PATCH("/api/v1/units/:id/status", h.UpdateStatus)
}
