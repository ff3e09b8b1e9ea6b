package schedule

import (
	"fmt"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ReminderKind distinguishes the alerts produced for one occurrence.
type ReminderKind string

const (
	ReminderDayBefore ReminderKind = "day-before"
	ReminderDue       ReminderKind = "due"
)

// DefaultReminderWindow limits how far ahead reminders are produced.
var DefaultReminderWindow = Horizon{Months: 1}

// Reminder is one alert a notification service should fire on FireOn.
type Reminder struct {
	Key         string                `json:"key"`
	EquipmentID string                `json:"equipment_id"`
	Kind        ReminderKind          `json:"kind"`
	Occurrence  models.OccurrenceKind `json:"occurrence_kind"`
	FireOn      time.Time             `json:"fire_on"`
	Date        time.Time             `json:"date"`
	Title       string                `json:"title"`
	Body        string                `json:"body"`
}

// Reminders derives alerts for items that are not completed: one the day
// before and one on the day. Hourly occurrences that are already due only get
// the on-the-day alert. Alerts firing before today or after the window are
// dropped, except that overdue items keep their due alert, moved to today.
func Reminders(items []Item, today time.Time, window Horizon) []Reminder {
	if window.IsZero() {
		window = DefaultReminderWindow
	}
	day := DateOf(today)
	end := window.End(day)

	var out []Reminder
	for _, it := range items {
		if it.Completed {
			continue
		}
		date := DateOf(it.Date)
		if date.After(end) {
			continue
		}
		label := describe(it.Occurrence)

		dueNow := it.Kind == models.KindHourly && !it.Estimated
		if !dueNow {
			before := date.AddDate(0, 0, -1)
			if !before.Before(day) {
				out = append(out, Reminder{
					Key:         it.Key,
					EquipmentID: it.EquipmentID,
					Kind:        ReminderDayBefore,
					Occurrence:  it.Kind,
					FireOn:      before,
					Date:        date,
					Title:       "Maintenance reminder",
					Body:        fmt.Sprintf("Maintenance for %s is due tomorrow.", label),
				})
			}
		}

		fire := date
		if fire.Before(day) {
			fire = day
		}
		title := "Maintenance due"
		body := fmt.Sprintf("Maintenance for %s is due today.", label)
		if dueNow {
			title = "Hourly maintenance required"
			body = fmt.Sprintf("%s reached %d operating hours: %s.", label, it.Hours, it.Reason)
		}
		out = append(out, Reminder{
			Key:         it.Key,
			EquipmentID: it.EquipmentID,
			Kind:        ReminderDue,
			Occurrence:  it.Kind,
			FireOn:      fire,
			Date:        date,
			Title:       title,
			Body:        body,
		})
	}
	return out
}

func describe(o models.Occurrence) string {
	switch {
	case o.Ship != "" && o.EquipmentType != "":
		return o.Ship + " - " + o.EquipmentType
	case o.EquipmentType != "":
		return o.EquipmentType
	default:
		return o.EquipmentID
	}
}
