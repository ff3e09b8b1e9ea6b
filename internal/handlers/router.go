package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/obs"
)

// RouterConfig collects what the API router serves
type RouterConfig struct {
	Schedule  *ScheduleHandler
	Profile   *ProfileHandler
	Repairs   *RepairHandler
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
	Metrics   *obs.Metrics
	Logger    logrus.FieldLogger
}

// NewRouter wires the HTTP API
func NewRouter(cfg RouterConfig) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	r := mux.NewRouter()
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(cfg.Metrics.Instrument)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if cfg.RateLimit != nil {
		api.Use(cfg.RateLimit.RateLimit)
	}
	api.Use(middleware.MaxBodyBytes(64 << 10))
	api.Use(cfg.Auth.Authenticate)

	api.HandleFunc("/schedule", cfg.Schedule.GetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedule/{key}/completion", cfg.Schedule.SetCompletion).Methods(http.MethodPut)
	api.HandleFunc("/schedule/{key}/comment", cfg.Schedule.SaveComment).Methods(http.MethodPut)
	api.HandleFunc("/reminders", cfg.Schedule.GetReminders).Methods(http.MethodGet)
	api.HandleFunc("/equipment", cfg.Schedule.ListEquipment).Methods(http.MethodGet)
	api.HandleFunc("/equipment", cfg.Schedule.CreateEquipment).Methods(http.MethodPost)
	api.HandleFunc("/equipment/{id}", cfg.Schedule.UpdateEquipment).Methods(http.MethodPut)
	api.HandleFunc("/equipment/{id}/hours", cfg.Schedule.UpdateHours).Methods(http.MethodPatch)
	if cfg.Repairs != nil {
		api.HandleFunc("/repairs", cfg.Repairs.ListRepairs).Methods(http.MethodGet)
		api.HandleFunc("/repairs", cfg.Repairs.ReportRepair).Methods(http.MethodPost)
		api.HandleFunc("/repairs/{id}", cfg.Repairs.UpdateStatus).Methods(http.MethodPatch)
	}
	if cfg.Profile != nil {
		api.HandleFunc("/me", cfg.Profile.GetProfile).Methods(http.MethodGet)
	}

	return r
}
