// Package maintenance serves maintenance schedules to viewers and records
// completion and comments against generated occurrences.
package maintenance

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
	"github.com/ukydev/fleet-maintenance/internal/obs"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrInvalidKey         = errors.New("invalid occurrence key")
	ErrOccurrenceNotFound = errors.New("no maintenance scheduled for this key")
	ErrEquipmentNotFound  = errors.New("equipment not found")
	ErrForbidden          = errors.New("not allowed to edit this equipment")
	ErrInvalidHours       = errors.New("operating hours must not be negative")
	ErrInvalidEquipment   = errors.New("invalid equipment")
)

// Config holds the collaborators and tuning of a Service. Zero values fall
// back to the role policy, the system clock and the schedule defaults.
type Config struct {
	Schedule       schedule.Options
	Locale         string
	ReminderWindow schedule.Horizon
	Policy         access.Policy
	Clock          schedule.Clock
	Metrics        *obs.Metrics
	Logger         logrus.FieldLogger
}

// Service combines the equipment and record stores with the scheduling core.
type Service struct {
	equipment db.EquipmentCollection
	records   db.RecordCollection
	cfg       Config
	log       logrus.FieldLogger
}

// NewService creates a new maintenance service
func NewService(equipment db.EquipmentCollection, records db.RecordCollection, cfg Config) *Service {
	if cfg.Policy == nil {
		cfg.Policy = access.RolePolicy{}
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock{}
	}
	if cfg.Locale == "" {
		cfg.Locale = schedule.DefaultLocale
	}
	if cfg.ReminderWindow.IsZero() {
		cfg.ReminderWindow = schedule.DefaultReminderWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		equipment: equipment,
		records:   records,
		cfg:       cfg,
		log:       logger.WithField("component", "maintenance"),
	}
}

// View is a reconciled schedule as presented to one viewer.
type View struct {
	Today    time.Time          `json:"today"`
	Sections []schedule.Section `json:"sections"`
	Summary  schedule.Summary   `json:"summary"`
}

// Today returns the current calendar day of the service clock.
func (s *Service) Today() time.Time {
	return schedule.Today(s.cfg.Clock)
}

// Equipment returns the equipment visible to viewer.
func (s *Service) Equipment(ctx context.Context, viewer *models.User) ([]models.Equipment, error) {
	list, err := s.equipment.FindEquipments(ctx, s.cfg.Policy.Filter(viewer))
	if err != nil {
		return nil, fmt.Errorf("load equipment: %w", err)
	}
	return access.FilterVisible(s.cfg.Policy, viewer, list), nil
}

// View generates the viewer's schedule and merges it with stored records.
func (s *Service) View(ctx context.Context, viewer *models.User, showCompleted bool) (*View, error) {
	today := s.Today()
	equipment, err := s.Equipment(ctx, viewer)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	occs := schedule.Generate(equipment, today, s.cfg.Schedule)

	records, err := s.recordsFor(ctx, occs)
	if err != nil {
		return nil, err
	}
	sections := schedule.Reconcile(occs, records, today, schedule.ReconcileOptions{
		ShowCompleted: showCompleted,
		Locale:        s.cfg.Locale,
	})
	s.cfg.Metrics.ObserveGeneration(time.Since(start), countByKind(occs))

	return &View{
		Today:    today,
		Sections: sections,
		Summary:  schedule.Summarize(sections),
	}, nil
}

// Reminders returns the alerts due for the viewer's open occurrences.
func (s *Service) Reminders(ctx context.Context, viewer *models.User) ([]schedule.Reminder, error) {
	view, err := s.View(ctx, viewer, false)
	if err != nil {
		return nil, err
	}
	return schedule.Reminders(schedule.Items(view.Sections), view.Today, s.cfg.ReminderWindow), nil
}

func (s *Service) recordsFor(ctx context.Context, occs []models.Occurrence) (map[string]models.MaintenanceRecord, error) {
	if len(occs) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(occs))
	keys := make(bson.A, 0, len(occs))
	for _, o := range occs {
		k := o.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	records, err := s.records.FindRecords(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("load maintenance records: %w", err)
	}
	return records, nil
}

// ToggleCompletion marks occ done or not done on behalf of actor. Marking an
// already completed occurrence done again keeps the original attribution.
func (s *Service) ToggleCompletion(ctx context.Context, occ models.Occurrence, done bool, actor string) error {
	key := occ.Key()
	err := s.toggle(ctx, key, occ, done, actor)
	s.cfg.Metrics.ObserveMutation("toggle_completion", err)
	if err != nil {
		return fmt.Errorf("toggle completion %s: %w", key, err)
	}
	s.log.WithFields(logrus.Fields{
		"key":       key,
		"completed": done,
		"actor":     actor,
	}).Info("Maintenance completion updated")
	return nil
}

func (s *Service) toggle(ctx context.Context, key string, occ models.Occurrence, done bool, actor string) error {
	existing, err := s.records.FindRecordByKey(ctx, key)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}

	now := s.cfg.Clock.Now()
	equipmentID := occ.EquipmentID
	date := occ.Date.Format(models.DateLayout)
	kind := occ.Kind
	reason := occ.Reason
	patch := models.RecordPatch{
		EquipmentID: &equipmentID,
		Date:        &date,
		Kind:        &kind,
		Reason:      &reason,
		Completed:   &done,
	}

	switch {
	case done && existing != nil && existing.Completed:
	case done:
		by := actor
		patch.CompletedBy = &by
		patch.CompletedAt = &now
		patch.SetCompletedAt = true
		patch.UpdatedAt = now
	case existing != nil && !existing.Completed && existing.CompletedBy == "" && existing.CompletedAt == nil:
	default:
		cleared := ""
		patch.CompletedBy = &cleared
		patch.SetCompletedAt = true
		patch.UpdatedAt = now
	}
	return s.records.UpsertRecord(ctx, key, patch)
}

// SaveComment stores text as the comment of the record at key, keeping every
// other field of the record.
func (s *Service) SaveComment(ctx context.Context, key, text, actor string) error {
	equipmentID, date, ok := models.SplitOccurrenceKey(key)
	if !ok {
		return ErrInvalidKey
	}
	now := s.cfg.Clock.Now()
	day := date.Format(models.DateLayout)
	patch := models.RecordPatch{
		EquipmentID: &equipmentID,
		Date:        &day,
		Comment:     &text,
		CommentBy:   &actor,
		CommentAt:   &now,
		UpdatedAt:   now,
	}
	err := s.records.UpsertRecord(ctx, key, patch)
	s.cfg.Metrics.ObserveMutation("save_comment", err)
	if err != nil {
		return fmt.Errorf("save comment %s: %w", key, err)
	}
	s.log.WithFields(logrus.Fields{"key": key, "actor": actor}).Info("Maintenance comment saved")
	return nil
}

// CompleteByKey resolves key against the viewer's current schedule and
// toggles its completion. When several occurrences share the key their
// reasons are recorded together.
func (s *Service) CompleteByKey(ctx context.Context, viewer *models.User, key string, done bool) error {
	eq, err := s.editable(ctx, viewer, key)
	if err != nil {
		return err
	}
	var matches []models.Occurrence
	for _, o := range schedule.Generate([]models.Equipment{*eq}, s.Today(), s.cfg.Schedule) {
		if o.Key() == key {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return ErrOccurrenceNotFound
	}
	occ := matches[0]
	if len(matches) > 1 {
		reasons := make([]string, len(matches))
		for i, m := range matches {
			reasons[i] = m.Reason
		}
		occ.Reason = strings.Join(reasons, " + ")
	}
	return s.ToggleCompletion(ctx, occ, done, viewer.Identity())
}

// CommentByKey saves a comment after checking the viewer may edit the
// equipment the key belongs to.
func (s *Service) CommentByKey(ctx context.Context, viewer *models.User, key, text string) error {
	if _, err := s.editable(ctx, viewer, key); err != nil {
		return err
	}
	return s.SaveComment(ctx, key, text, viewer.Identity())
}

func (s *Service) editable(ctx context.Context, viewer *models.User, key string) (*models.Equipment, error) {
	equipmentID, _, ok := models.SplitOccurrenceKey(key)
	if !ok {
		return nil, ErrInvalidKey
	}
	return s.editableEquipment(ctx, viewer, equipmentID)
}

func (s *Service) editableEquipment(ctx context.Context, viewer *models.User, id string) (*models.Equipment, error) {
	eq, err := s.equipment.FindEquipmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("load equipment %s: %w", id, err)
	}
	if !s.cfg.Policy.CanEdit(viewer, *eq) {
		return nil, ErrForbidden
	}
	return eq, nil
}

// UpdateHours sets the cumulative operating hours of equipment. Lower values
// than the stored one are accepted; schedules are always recomputed from the
// latest value.
func (s *Service) UpdateHours(ctx context.Context, viewer *models.User, id string, hours int64) error {
	if hours < 0 {
		return ErrInvalidHours
	}
	eq, err := s.editableEquipment(ctx, viewer, id)
	if err != nil {
		return err
	}
	today := s.Today().Format(models.DateLayout)
	err = s.equipment.UpdateWorkingHours(ctx, id, hours, today)
	s.cfg.Metrics.ObserveMutation("update_hours", err)
	if err != nil {
		return fmt.Errorf("update hours %s: %w", id, err)
	}
	s.log.WithFields(logrus.Fields{
		"equipment_id": id,
		"previous":     eq.WorkingHours.Int(),
		"hours":        hours,
		"actor":        viewer.Identity(),
	}).Info("Operating hours updated")
	return nil
}

// EquipmentInput is the equipment form. Counts are whole numbers; the ones
// that do not apply to the maintenance type are stored as zero.
type EquipmentInput struct {
	ShipID          string `json:"ship_id"`
	Ship            string `json:"ship"`
	Type            string `json:"type"`
	Brand           string `json:"brand"`
	SerialNo        string `json:"serial_no"`
	Responsible     string `json:"responsible"`
	WorkingHours    int64  `json:"working_hours"`
	MaintenanceType string `json:"maintenance_type"`
	PeriodicDays    int64  `json:"periodic_days"`
	MaintenanceHour int64  `json:"maintenance_hour"`
	StartDate       string `json:"start_date"`
}

// equipment validates in and builds the stored equipment. The maintenance
// type is written with the label the mobile client uses; a missing start date
// defaults to today.
func (in EquipmentInput) equipment(today time.Time) (models.Equipment, error) {
	required := []struct{ name, value string }{
		{"ship_id", in.ShipID},
		{"type", in.Type},
		{"brand", in.Brand},
		{"serial_no", in.SerialNo},
		{"maintenance_type", in.MaintenanceType},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return models.Equipment{}, fmt.Errorf("%w: %s is required", ErrInvalidEquipment, f.name)
		}
	}
	mt := models.MaintenanceType(in.MaintenanceType)
	if mt.Normalize() == "" {
		return models.Equipment{}, fmt.Errorf("%w: unknown maintenance_type %q", ErrInvalidEquipment, in.MaintenanceType)
	}
	if in.WorkingHours < 0 || in.PeriodicDays < 0 || in.MaintenanceHour < 0 {
		return models.Equipment{}, fmt.Errorf("%w: counts must not be negative", ErrInvalidEquipment)
	}

	eq := models.Equipment{
		ShipID:          strings.TrimSpace(in.ShipID),
		Ship:            strings.TrimSpace(in.Ship),
		Type:            strings.TrimSpace(in.Type),
		Brand:           strings.TrimSpace(in.Brand),
		SerialNo:        strings.TrimSpace(in.SerialNo),
		Responsible:     strings.TrimSpace(in.Responsible),
		WorkingHours:    models.Count(in.WorkingHours),
		MaintenanceType: models.MaintenanceType(mt.Label()),
		LastUpdated:     models.DateString(today.Format(models.DateLayout)),
	}
	if mt.HasPeriodic() {
		if in.PeriodicDays == 0 {
			return models.Equipment{}, fmt.Errorf("%w: periodic_days is required for %s", ErrInvalidEquipment, mt.Label())
		}
		eq.PeriodicDays = models.Count(in.PeriodicDays)
	}
	if mt.HasHourly() {
		if in.MaintenanceHour == 0 {
			return models.Equipment{}, fmt.Errorf("%w: maintenance_hour is required for %s", ErrInvalidEquipment, mt.Label())
		}
		eq.MaintenanceHour = models.Count(in.MaintenanceHour)
	}

	start := strings.TrimSpace(in.StartDate)
	if start == "" {
		start = today.Format(models.DateLayout)
	}
	day, ok := models.DateString(start).Day(time.UTC)
	if !ok {
		return models.Equipment{}, fmt.Errorf("%w: start_date %q is not a date", ErrInvalidEquipment, in.StartDate)
	}
	eq.StartDate = models.DateString(day.Format(models.DateLayout))
	return eq, nil
}

// CreateEquipment adds equipment on behalf of an admin of its ship.
func (s *Service) CreateEquipment(ctx context.Context, viewer *models.User, in EquipmentInput) (*models.Equipment, error) {
	eq, err := in.equipment(s.Today())
	if err != nil {
		return nil, err
	}
	if !s.cfg.Policy.CanManage(viewer, eq.ShipID) {
		return nil, ErrForbidden
	}
	id, err := s.equipment.InsertEquipment(ctx, eq)
	s.cfg.Metrics.ObserveMutation("create_equipment", err)
	if err != nil {
		return nil, fmt.Errorf("create equipment: %w", err)
	}
	eq.ID = models.DocID(id)
	s.log.WithFields(logrus.Fields{
		"equipment_id": id,
		"ship_id":      eq.ShipID,
		"actor":        viewer.Identity(),
	}).Info("Equipment created")
	return &eq, nil
}

// UpdateEquipment replaces the form fields of equipment id. The admin must
// manage both the current ship and, when it moves, the new one.
func (s *Service) UpdateEquipment(ctx context.Context, viewer *models.User, id string, in EquipmentInput) (*models.Equipment, error) {
	eq, err := in.equipment(s.Today())
	if err != nil {
		return nil, err
	}
	current, err := s.equipment.FindEquipmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("load equipment %s: %w", id, err)
	}
	if !s.cfg.Policy.CanManage(viewer, current.ShipID) || !s.cfg.Policy.CanManage(viewer, eq.ShipID) {
		return nil, ErrForbidden
	}
	eq.ID = current.ID
	err = s.equipment.UpdateEquipment(ctx, eq)
	s.cfg.Metrics.ObserveMutation("update_equipment", err)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("update equipment %s: %w", id, err)
	}
	s.log.WithFields(logrus.Fields{
		"equipment_id": id,
		"ship_id":      eq.ShipID,
		"actor":        viewer.Identity(),
	}).Info("Equipment updated")
	return &eq, nil
}

func countByKind(occs []models.Occurrence) map[string]int {
	out := make(map[string]int, 2)
	for _, o := range occs {
		out[string(o.Kind)]++
	}
	return out
}
