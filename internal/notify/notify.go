// Package notify turns maintenance schedules into reminder batches and hands
// them to a transport.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/obs"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
)

// Batch is the full set of pending reminders. Receivers replace whatever they
// scheduled from the previous batch.
type Batch struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Today       string              `json:"today"`
	Reminders   []schedule.Reminder `json:"reminders"`
}

// Sink delivers batches.
type Sink interface {
	Send(ctx context.Context, batch Batch) error
}

// LogSink writes reminders to a logger. Used when no broker is configured.
type LogSink struct {
	Log logrus.FieldLogger
}

// Send logs every reminder of batch.
func (s LogSink) Send(_ context.Context, batch Batch) error {
	for _, r := range batch.Reminders {
		s.Log.WithFields(logrus.Fields{
			"key":     r.Key,
			"kind":    r.Kind,
			"fire_on": r.FireOn.Format(models.DateLayout),
		}).Info(r.Title + ": " + r.Body)
	}
	return nil
}

// Notice tells admins about a change in the repair log. Audience lists the
// roles expected to act on it; ship admins filter by ShipID.
type Notice struct {
	Type          string              `json:"type"`
	RepairID      string              `json:"repair_id"`
	Status        models.RepairStatus `json:"status"`
	EquipmentID   string              `json:"equipment_id"`
	EquipmentName string              `json:"equipment_name"`
	ShipID        string              `json:"ship_id,omitempty"`
	Title         string              `json:"title"`
	Body          string              `json:"body"`
	Audience      []models.Role       `json:"audience"`
	Actor         string              `json:"actor,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// RepairNotice builds the admin notice for repair entering its current status.
func RepairNotice(repair models.Repair, actor string, at time.Time) Notice {
	name := repair.EquipmentName
	if name == "" {
		name = repair.EquipmentID
	}
	n := Notice{
		Type:          "repair",
		RepairID:      string(repair.ID),
		Status:        repair.Status,
		EquipmentID:   repair.EquipmentID,
		EquipmentName: name,
		ShipID:        repair.ShipID,
		Audience:      []models.Role{models.RoleMainAdmin, models.RoleShipAdmin},
		Actor:         actor,
		CreatedAt:     at.UTC(),
	}
	switch repair.Status {
	case models.RepairInProgress:
		n.Title = "Repair in progress"
		n.Body = fmt.Sprintf("Work on the fault of %s has started.", name)
	case models.RepairResolved:
		n.Title = "Repair resolved"
		n.Body = fmt.Sprintf("The fault of %s has been resolved.", name)
	default:
		n.Title = "New repair reported"
		n.Body = fmt.Sprintf("A new fault was reported for %s.", name)
	}
	return n
}

// Notifier delivers single notices.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// Transport carries both reminder batches and repair notices.
type Transport interface {
	Sink
	Notifier
}

// Notify logs notice.
func (s LogSink) Notify(_ context.Context, notice Notice) error {
	s.Log.WithFields(logrus.Fields{
		"repair_id": notice.RepairID,
		"status":    notice.Status,
		"ship_id":   notice.ShipID,
	}).Info(notice.Title + ": " + notice.Body)
	return nil
}

// Source computes reminders for a viewer.
type Source interface {
	Reminders(ctx context.Context, viewer *models.User) ([]schedule.Reminder, error)
	Today() time.Time
}

// Dispatcher recomputes reminders and forwards them when they change.
type Dispatcher struct {
	source  Source
	sink    Sink
	viewer  *models.User
	metrics *obs.Metrics
	log     logrus.FieldLogger

	mu   sync.Mutex
	last []byte
}

// NewDispatcher creates a dispatcher that computes reminders as viewer.
func NewDispatcher(source Source, sink Sink, viewer *models.User, metrics *obs.Metrics, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		source:  source,
		sink:    sink,
		viewer:  viewer,
		metrics: metrics,
		log:     logger.WithField("component", "notify"),
	}
}

// Refresh sends the current reminders unless they equal the last batch sent.
// A failed send is retried on the next call.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	err := d.refresh(ctx)
	d.metrics.ObserveRefresh(err)
	return err
}

func (d *Dispatcher) refresh(ctx context.Context) error {
	reminders, err := d.source.Reminders(ctx, d.viewer)
	if err != nil {
		return fmt.Errorf("compute reminders: %w", err)
	}
	if reminders == nil {
		reminders = []schedule.Reminder{}
	}
	fingerprint, err := json.Marshal(reminders)
	if err != nil {
		return fmt.Errorf("marshal reminders: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil && bytes.Equal(d.last, fingerprint) {
		return nil
	}

	batch := Batch{
		GeneratedAt: time.Now().UTC(),
		Today:       d.source.Today().Format(models.DateLayout),
		Reminders:   reminders,
	}
	if err := d.sink.Send(ctx, batch); err != nil {
		return err
	}
	d.last = fingerprint
	d.metrics.ObserveReminders(len(reminders))
	d.log.WithField("reminders", len(reminders)).Info("Reminders dispatched")
	return nil
}
