// Package schedule computes upcoming maintenance occurrences from equipment
// policies and merges them with recorded completion state for display.
//
// Everything in this package is pure: callers pass "today" explicitly, usually
// from a Clock, and get freshly allocated results back.
package schedule

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// DefaultDailyHours is the assumed operating rate used to project hourly
// maintenance onto the calendar.
const DefaultDailyHours = 8.0

// maxIntervalDays bounds calendar steps. An interval this long never repeats
// inside any practical horizon, so larger values behave identically.
const maxIntervalDays = 1_000_000

// Options tune a generation pass.
type Options struct {
	Horizon    Horizon
	DailyHours float64
}

func (o Options) withDefaults() Options {
	if o.Horizon.IsZero() {
		o.Horizon = DefaultHorizon
	}
	if o.DailyHours <= 0 || math.IsNaN(o.DailyHours) || math.IsInf(o.DailyHours, 0) {
		o.DailyHours = DefaultDailyHours
	}
	return o
}

// Generate returns the maintenance occurrences of all equipment between today
// and the end of the horizon, ordered by date, equipment id and reason.
func Generate(equipments []models.Equipment, today time.Time, opts Options) []models.Occurrence {
	opts = opts.withDefaults()
	day := DateOf(today)
	end := opts.Horizon.End(day)

	var out []models.Occurrence
	for i := range equipments {
		out = append(out, forEquipment(&equipments[i], day, end, opts)...)
	}
	Sort(out)
	return out
}

// Sort orders occurrences by date, then equipment id, then reason.
func Sort(occs []models.Occurrence) {
	slices.SortStableFunc(occs, func(a, b models.Occurrence) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EquipmentID, b.EquipmentID); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
}

func forEquipment(eq *models.Equipment, today, end time.Time, opts Options) []models.Occurrence {
	start, ok := eq.StartDate.Day(time.UTC)
	if !ok {
		return nil
	}
	base := models.Occurrence{
		EquipmentID:   string(eq.ID),
		Ship:          eq.Ship,
		EquipmentType: eq.Type,
	}

	var out []models.Occurrence
	if eq.MaintenanceType.HasPeriodic() && eq.PeriodicDays > 0 {
		out = append(out, periodic(base, start, today, end, eq.PeriodicDays.Int())...)
	}
	if eq.MaintenanceType.HasHourly() && eq.MaintenanceHour > 0 {
		if occ, ok := hourly(base, today, end, eq.WorkingHours.Int(), eq.MaintenanceHour.Int(), opts.DailyHours); ok {
			out = append(out, occ)
		}
	}
	return out
}

func periodic(base models.Occurrence, start, today, end time.Time, interval int64) []models.Occurrence {
	step := int(min(interval, maxIntervalDays))
	first := start
	if start.Before(today) {
		elapsed := daysBetween(start, today)
		k := (elapsed + step - 1) / step
		first = start.AddDate(0, 0, k*step)
	}

	reason := fmt.Sprintf("Periodic maintenance (%d days)", interval)
	var out []models.Occurrence
	for d := first; !d.After(end); d = d.AddDate(0, 0, step) {
		occ := base
		occ.Date = d
		occ.Kind = models.KindPeriodic
		occ.Reason = reason
		out = append(out, occ)
	}
	return out
}

func hourly(base models.Occurrence, today, end time.Time, hours, interval int64, dailyHours float64) (models.Occurrence, bool) {
	occ := base
	occ.Kind = models.KindHourly
	occ.Hours = hours
	occ.ServiceNumber = hours/interval + 1

	if hours >= interval {
		occ.Date = today
		occ.Reason = fmt.Sprintf("Hourly maintenance due: %d. bakım (every %d h, at %d h)", occ.ServiceNumber, interval, hours)
		return occ, true
	}

	days := math.Ceil(float64(interval-hours) / dailyHours)
	if days > float64(daysBetween(today, end)) {
		return models.Occurrence{}, false
	}
	occ.Date = today.AddDate(0, 0, int(days))
	occ.Estimated = true
	occ.Reason = fmt.Sprintf("Hourly maintenance estimated: %d. bakım (every %d h, at %d h)", occ.ServiceNumber, interval, hours)
	return occ, true
}
