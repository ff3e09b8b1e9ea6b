package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/maintenance"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
)

// ScheduleService is the maintenance service as seen by the HTTP layer
type ScheduleService interface {
	Equipment(ctx context.Context, viewer *models.User) ([]models.Equipment, error)
	View(ctx context.Context, viewer *models.User, showCompleted bool) (*maintenance.View, error)
	Reminders(ctx context.Context, viewer *models.User) ([]schedule.Reminder, error)
	CompleteByKey(ctx context.Context, viewer *models.User, key string, done bool) error
	CommentByKey(ctx context.Context, viewer *models.User, key, text string) error
	UpdateHours(ctx context.Context, viewer *models.User, id string, hours int64) error
	CreateEquipment(ctx context.Context, viewer *models.User, in maintenance.EquipmentInput) (*models.Equipment, error)
	UpdateEquipment(ctx context.Context, viewer *models.User, id string, in maintenance.EquipmentInput) (*models.Equipment, error)
}

// ScheduleHandler serves the maintenance schedule and its mutations
type ScheduleHandler struct {
	service ScheduleService
	log     logrus.FieldLogger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(service ScheduleService, logger logrus.FieldLogger) *ScheduleHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ScheduleHandler{service: service, log: logger}
}

// CompletionRequest is the body of a completion toggle
type CompletionRequest struct {
	Completed *bool `json:"completed"`
}

// CommentRequest is the body of a comment update
type CommentRequest struct {
	Comment string `json:"comment"`
}

// HoursRequest is the body of an operating hours update
type HoursRequest struct {
	WorkingHours *json.Number `json:"working_hours"`
}

// GetSchedule returns the viewer's schedule grouped by month
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	showCompleted := false
	if v := r.URL.Query().Get("show_completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "show_completed must be a boolean", http.StatusBadRequest)
			return
		}
		showCompleted = b
	}

	view, err := h.service.View(r.Context(), viewer, showCompleted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListEquipment returns the equipment visible to the viewer
func (h *ScheduleHandler) ListEquipment(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	list, err := h.service.Equipment(r.Context(), viewer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Equipment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetReminders returns the reminders pending for the viewer
func (h *ScheduleHandler) GetReminders(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	reminders, err := h.service.Reminders(r.Context(), viewer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reminders == nil {
		reminders = []schedule.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

// SetCompletion marks an occurrence done or not done
func (h *ScheduleHandler) SetCompletion(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Completed == nil {
		http.Error(w, "completed is required", http.StatusBadRequest)
		return
	}

	key := mux.Vars(r)["key"]
	if err := h.service.CompleteByKey(r.Context(), viewer, key, *req.Completed); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveComment stores the comment of an occurrence
func (h *ScheduleHandler) SaveComment(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	key := mux.Vars(r)["key"]
	if err := h.service.CommentByKey(r.Context(), viewer, key, req.Comment); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateHours stores new cumulative operating hours for equipment
func (h *ScheduleHandler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req HoursRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.WorkingHours == nil {
		http.Error(w, "working_hours is required", http.StatusBadRequest)
		return
	}
	hours, err := req.WorkingHours.Int64()
	if err != nil {
		http.Error(w, "working_hours must be an integer", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.service.UpdateHours(r.Context(), viewer, id, hours); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateEquipment adds equipment from the admin form
func (h *ScheduleHandler) CreateEquipment(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req maintenance.EquipmentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	eq, err := h.service.CreateEquipment(r.Context(), viewer, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eq)
}

// UpdateEquipment replaces the form fields of equipment
func (h *ScheduleHandler) UpdateEquipment(w http.ResponseWriter, r *http.Request) {
	viewer, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var req maintenance.EquipmentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	eq, err := h.service.UpdateEquipment(r.Context(), viewer, mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (h *ScheduleHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, maintenance.ErrInvalidKey), errors.Is(err, maintenance.ErrInvalidHours),
		errors.Is(err, maintenance.ErrInvalidEquipment):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, maintenance.ErrForbidden):
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
	case errors.Is(err, maintenance.ErrOccurrenceNotFound), errors.Is(err, maintenance.ErrEquipmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
