// Package repairs keeps the repair log: faults reported against equipment and
// their progress from reported to resolved.
package repairs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/access"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/notify"
	"github.com/ukydev/fleet-maintenance/internal/obs"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrInvalidRepair     = errors.New("invalid repair")
	ErrInvalidTransition = errors.New("invalid repair status change")
	ErrRepairNotFound    = errors.New("repair not found")
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrForbidden         = errors.New("not allowed to access this repair")
)

// Policy is what the repair log needs from the access rules.
type Policy interface {
	access.RepairScope
	Visible(viewer *models.User, eq models.Equipment) bool
}

// Config holds the collaborators of a Service. Zero values fall back to the
// role policy, the system clock and a discarding notifier.
type Config struct {
	Policy   Policy
	Notifier notify.Notifier
	Clock    schedule.Clock
	Metrics  *obs.Metrics
	Logger   logrus.FieldLogger
}

// Service records repairs and notifies admins of every status change.
type Service struct {
	repairs   db.RepairCollection
	equipment db.EquipmentCollection
	cfg       Config
	log       logrus.FieldLogger
}

// NewService creates a repair service.
func NewService(repairs db.RepairCollection, equipment db.EquipmentCollection, cfg Config) *Service {
	if cfg.Policy == nil {
		cfg.Policy = access.RolePolicy{}
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogSink{Log: logger}
	}
	return &Service{
		repairs:   repairs,
		equipment: equipment,
		cfg:       cfg,
		log:       logger.WithField("component", "repairs"),
	}
}

// ReportInput is a new fault report.
type ReportInput struct {
	EquipmentID string     `json:"equipment_id"`
	Description string     `json:"description"`
	ReportedAt  *time.Time `json:"reported_at,omitempty"`
	ImageURI    string     `json:"image_uri,omitempty"`
}

// List returns the repairs viewer may see, newest first. Resolved repairs are
// left out unless showResolved is set.
func (s *Service) List(ctx context.Context, viewer *models.User, showResolved bool) ([]models.Repair, error) {
	list, err := s.repairs.FindRepairs(ctx, s.cfg.Policy.RepairFilter(viewer))
	if err != nil {
		return nil, fmt.Errorf("load repairs: %w", err)
	}
	out := make([]models.Repair, 0, len(list))
	for _, r := range list {
		if !s.cfg.Policy.RepairVisible(viewer, r) {
			continue
		}
		if !showResolved && r.Status == models.RepairResolved {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Report logs a new fault against equipment the viewer can see.
func (s *Service) Report(ctx context.Context, viewer *models.User, in ReportInput) (*models.Repair, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidRepair)
	}
	if strings.TrimSpace(in.EquipmentID) == "" {
		return nil, fmt.Errorf("%w: equipment_id is required", ErrInvalidRepair)
	}
	eq, err := s.equipment.FindEquipmentByID(ctx, in.EquipmentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("load equipment %s: %w", in.EquipmentID, err)
	}
	if !s.cfg.Policy.Visible(viewer, *eq) {
		return nil, ErrForbidden
	}

	now := s.cfg.Clock.Now().UTC()
	reportedAt := now
	if in.ReportedAt != nil && !in.ReportedAt.IsZero() {
		reportedAt = in.ReportedAt.UTC()
	}
	repair := models.Repair{
		EquipmentID:   string(eq.ID),
		EquipmentName: equipmentName(*eq),
		ShipID:        eq.ShipID,
		Description:   description,
		Status:        models.RepairReported,
		ReportedAt:    reportedAt,
		ImageURI:      strings.TrimSpace(in.ImageURI),
		CreatedBy:     string(viewer.ID),
		CreatedByName: viewer.Identity(),
		UpdatedAt:     now,
	}
	id, err := s.repairs.InsertRepair(ctx, repair)
	s.cfg.Metrics.ObserveMutation("report_repair", err)
	if err != nil {
		return nil, fmt.Errorf("report repair: %w", err)
	}
	repair.ID = models.DocID(id)

	s.log.WithFields(logrus.Fields{
		"repair_id":    id,
		"equipment_id": repair.EquipmentID,
		"actor":        viewer.Identity(),
	}).Info("Repair reported")
	s.notify(ctx, repair, viewer)
	return &repair, nil
}

// Advance moves a repair to status, which must be the next step of its
// lifecycle. Entering inprogress stamps startedAt, entering resolved stamps
// resolvedAt; other fields are left as stored.
func (s *Service) Advance(ctx context.Context, viewer *models.User, id string, status models.RepairStatus) (*models.Repair, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	repair, err := s.repairs.FindRepairByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrRepairNotFound
		}
		return nil, fmt.Errorf("load repair %s: %w", id, err)
	}
	if !s.cfg.Policy.RepairVisible(viewer, *repair) {
		return nil, ErrForbidden
	}
	if repair.Status.Next() != status {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, repair.Status, status)
	}

	now := s.cfg.Clock.Now().UTC()
	set := bson.M{"status": string(status), "updatedAt": now}
	switch status {
	case models.RepairInProgress:
		set["startedAt"] = now
		repair.StartedAt = &now
	case models.RepairResolved:
		set["resolvedAt"] = now
		repair.ResolvedAt = &now
	}
	err = s.repairs.UpdateRepair(ctx, id, set)
	s.cfg.Metrics.ObserveMutation("advance_repair", err)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrRepairNotFound
		}
		return nil, fmt.Errorf("update repair %s: %w", id, err)
	}
	repair.Status = status
	repair.UpdatedAt = now

	s.log.WithFields(logrus.Fields{
		"repair_id": id,
		"status":    status,
		"actor":     viewer.Identity(),
	}).Info("Repair status updated")
	s.notify(ctx, *repair, viewer)
	return repair, nil
}

// notify tells admins about repair. The change is already stored, so a failed
// delivery is only logged.
func (s *Service) notify(ctx context.Context, repair models.Repair, actor *models.User) {
	notice := notify.RepairNotice(repair, actor.Identity(), s.cfg.Clock.Now())
	if err := s.cfg.Notifier.Notify(ctx, notice); err != nil {
		s.log.WithError(err).WithField("repair_id", string(repair.ID)).Warn("Repair notice not delivered")
	}
}

// equipmentName is the label the mobile client shows for equipment.
func equipmentName(eq models.Equipment) string {
	name := strings.Trim(strings.TrimSpace(eq.Ship)+" - "+strings.TrimSpace(eq.Type), " -")
	if name == "" {
		return string(eq.ID)
	}
	return name
}
