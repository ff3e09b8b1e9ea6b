package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/repairs"
)

// RepairService is the repair log as seen by the HTTP layer
type RepairService interface {
	List(ctx context.Context, viewer *models.User, showResolved bool) ([]models.Repair, error)
	Report(ctx context.Context, viewer *models.User, in repairs.ReportInput) (*models.Repair, error)
	Advance(ctx context.Context, viewer *models.User, id string, status models.RepairStatus) (*models.Repair, error)
}

// RepairHandler serves the repair log
type RepairHandler struct {
	service RepairService
	log     logrus.FieldLogger
}

// NewRepairHandler creates a new repair handler
func NewRepairHandler(service RepairService, logger logrus.FieldLogger) *RepairHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RepairHandler{service: service, log: logger}
}

// StatusRequest is the body of a repair status change
type StatusRequest struct {
	Status models.RepairStatus `json:"status"`
}

// ListRepairs returns the repairs visible to the viewer
func (h *RepairHandler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	showResolved := false
	if v := r.URL.Query().Get("show_resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "show_resolved must be a boolean", http.StatusBadRequest)
			return
		}
		showResolved = b
	}

	list, err := h.service.List(r.Context(), viewer, showResolved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Repair{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ReportRepair logs a new fault
func (h *RepairHandler) ReportRepair(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req repairs.ReportInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	repair, err := h.service.Report(r.Context(), viewer, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repair)
}

// UpdateStatus moves a repair to its next status
func (h *RepairHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}

	repair, err := h.service.Advance(r.Context(), viewer, mux.Vars(r)["id"], req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repair)
}

func (h *RepairHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repairs.ErrInvalidRepair):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repairs.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, repairs.ErrForbidden):
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
	case errors.Is(err, repairs.ErrRepairNotFound), errors.Is(err, repairs.ErrEquipmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
