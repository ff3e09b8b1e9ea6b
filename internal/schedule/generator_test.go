package schedule

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerate_PeriodicRollsForward(t *testing.T) {
	eq := models.Equipment{
		ID:              "A",
		MaintenanceType: models.MaintenancePeriodic,
		PeriodicDays:    30,
		StartDate:       "2024-01-01",
	}
	today := day("2024-06-15")

	occs := Generate([]models.Equipment{eq}, today, Options{})
	require.Len(t, occs, 12)

	// 2024 is a leap year: 2024-01-01 + 180 days is 2024-06-29.
	assert.Equal(t, "2024-06-29", occs[0].Date.Format(models.DateLayout))
	assert.Equal(t, "2024-07-29", occs[1].Date.Format(models.DateLayout))
	assert.Equal(t, "2025-05-25", occs[11].Date.Format(models.DateLayout))
	for _, o := range occs {
		assert.Equal(t, models.KindPeriodic, o.Kind)
		assert.Equal(t, "Periodic maintenance (30 days)", o.Reason)
	}
}

func TestGenerate_PeriodicStartInFuture(t *testing.T) {
	eq := models.Equipment{ID: "F", MaintenanceType: models.MaintenancePeriodic, PeriodicDays: 90, StartDate: "2024-08-01"}
	occs := Generate([]models.Equipment{eq}, day("2024-06-15"), Options{})
	require.NotEmpty(t, occs)
	assert.Equal(t, "2024-08-01", occs[0].Date.Format(models.DateLayout))
}

func TestGenerate_PeriodicStartingToday(t *testing.T) {
	eq := models.Equipment{ID: "T", MaintenanceType: models.MaintenancePeriodic, PeriodicDays: 10, StartDate: "2024-06-05"}
	occs := Generate([]models.Equipment{eq}, day("2024-06-15"), Options{})
	require.NotEmpty(t, occs)
	assert.Equal(t, "2024-06-15", occs[0].Date.Format(models.DateLayout))
}

func TestGenerate_HourlyDueNow(t *testing.T) {
	eq := models.Equipment{
		ID:              "B",
		MaintenanceType: models.MaintenanceHourly,
		MaintenanceHour: 500,
		WorkingHours:    520,
		StartDate:       "2024-01-01",
	}
	today := day("2024-06-15")

	occs := Generate([]models.Equipment{eq}, today, Options{})
	require.Len(t, occs, 1)
	o := occs[0]
	assert.True(t, o.Date.Equal(today))
	assert.Equal(t, models.KindHourly, o.Kind)
	assert.Equal(t, int64(2), o.ServiceNumber)
	assert.Equal(t, int64(520), o.Hours)
	assert.False(t, o.Estimated)
	assert.Equal(t, "Hourly maintenance due: 2. bakım (every 500 h, at 520 h)", o.Reason)
}

func TestGenerate_HourlyEstimated(t *testing.T) {
	eq := models.Equipment{
		ID:              "C",
		MaintenanceType: models.MaintenanceHourly,
		MaintenanceHour: 500,
		WorkingHours:    300,
		StartDate:       "2024-01-01",
	}
	today := day("2024-06-15")

	occs := Generate([]models.Equipment{eq}, today, Options{})
	require.Len(t, occs, 1)
	assert.Equal(t, "2024-07-10", occs[0].Date.Format(models.DateLayout))
	assert.True(t, occs[0].Estimated)
	assert.Equal(t, int64(1), occs[0].ServiceNumber)
}

func TestGenerate_HourlyEstimateBeyondHorizon(t *testing.T) {
	eq := models.Equipment{ID: "C2", MaintenanceType: models.MaintenanceHourly, MaintenanceHour: 10000, WorkingHours: 0, StartDate: "2024-01-01"}
	occs := Generate([]models.Equipment{eq}, day("2024-06-15"), Options{Horizon: Horizon{Months: 1}})
	assert.Empty(t, occs)

	occs = Generate([]models.Equipment{eq}, day("2024-06-15"), Options{DailyHours: 24})
	assert.Empty(t, occs, "ceil(10000/24)=417 days exceeds a year")

	occs = Generate([]models.Equipment{eq}, day("2024-06-15"), Options{DailyHours: 24, Horizon: Horizon{Years: 2}})
	require.Len(t, occs, 1)
	assert.Equal(t, "2025-08-06", occs[0].Date.Format(models.DateLayout))
}

func TestGenerate_MissingStartDate(t *testing.T) {
	eq := models.Equipment{
		ID:              "D",
		MaintenanceType: models.MaintenanceBoth,
		PeriodicDays:    7,
		MaintenanceHour: 100,
		WorkingHours:    900,
	}
	assert.Empty(t, Generate([]models.Equipment{eq}, day("2024-06-15"), Options{}))

	eq.StartDate = "not a date"
	assert.Empty(t, Generate([]models.Equipment{eq}, day("2024-06-15"), Options{}))
}

func TestGenerate_DisabledBranches(t *testing.T) {
	tests := []struct {
		name string
		eq   models.Equipment
	}{
		{"periodic without days", models.Equipment{ID: "x", MaintenanceType: models.MaintenancePeriodic, StartDate: "2024-01-01"}},
		{"hourly without interval", models.Equipment{ID: "x", MaintenanceType: models.MaintenanceHourly, WorkingHours: 50, StartDate: "2024-01-01"}},
		{"unknown type", models.Equipment{ID: "x", MaintenanceType: "Weekly", PeriodicDays: 7, MaintenanceHour: 10, StartDate: "2024-01-01"}},
		{"hourly fields on periodic policy", models.Equipment{ID: "x", MaintenanceType: models.MaintenancePeriodic, MaintenanceHour: 10, WorkingHours: 50, StartDate: "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Generate([]models.Equipment{tt.eq}, day("2024-06-15"), Options{}))
		})
	}
}

func TestGenerate_BothSameDayCollide(t *testing.T) {
	eq := models.Equipment{
		ID:              "E",
		MaintenanceType: "Her İkisi",
		PeriodicDays:    5,
		MaintenanceHour: 250,
		WorkingHours:    250,
		StartDate:       "2024-06-10",
	}
	today := day("2024-06-15")

	occs := Generate([]models.Equipment{eq}, today, Options{Horizon: Horizon{Days: 5}})
	require.Len(t, occs, 3)
	assert.Equal(t, occs[0].Key(), occs[1].Key())
	assert.Equal(t, models.KindHourly, occs[0].Kind, "ties sort by reason")
	assert.Equal(t, models.KindPeriodic, occs[1].Kind)
	assert.Equal(t, "2024-06-20", occs[2].Date.Format(models.DateLayout))
}

func TestGenerate_TruncatesTimeOfDay(t *testing.T) {
	eq := models.Equipment{ID: "A", MaintenanceType: models.MaintenancePeriodic, PeriodicDays: 1, StartDate: "2024-06-01"}
	morning := Generate([]models.Equipment{eq}, time.Date(2024, 6, 15, 0, 1, 0, 0, time.UTC), Options{Horizon: Horizon{Days: 2}})
	evening := Generate([]models.Equipment{eq}, time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC), Options{Horizon: Horizon{Days: 2}})
	assert.Equal(t, morning, evening)
	assert.Len(t, morning, 3)
}

func TestGenerate_OrderingTies(t *testing.T) {
	mk := func(id string) models.Equipment {
		return models.Equipment{ID: models.DocID(id), MaintenanceType: models.MaintenancePeriodic, PeriodicDays: 400, StartDate: "2024-07-01"}
	}
	occs := Generate([]models.Equipment{mk("zeta"), mk("alpha"), mk("mid")}, day("2024-06-15"), Options{})
	require.Len(t, occs, 3)
	assert.Equal(t, "alpha", occs[0].EquipmentID)
	assert.Equal(t, "mid", occs[1].EquipmentID)
	assert.Equal(t, "zeta", occs[2].EquipmentID)
}

func TestGenerate_HugeInterval(t *testing.T) {
	eq := models.Equipment{ID: "H", MaintenanceType: models.MaintenancePeriodic, PeriodicDays: models.Count(1 << 60), StartDate: "2020-01-01"}
	assert.Empty(t, Generate([]models.Equipment{eq}, day("2024-06-15"), Options{}))
}

func randomEquipment(r *rand.Rand, id string) models.Equipment {
	types := []models.MaintenanceType{models.MaintenancePeriodic, models.MaintenanceHourly, models.MaintenanceBoth, "", "Saatlik"}
	eq := models.Equipment{
		ID:              models.DocID(id),
		MaintenanceType: types[r.IntN(len(types))],
		PeriodicDays:    models.Count(r.IntN(120)),
		MaintenanceHour: models.Count(r.IntN(1000)),
		WorkingHours:    models.Count(r.IntN(3000)),
	}
	switch r.IntN(5) {
	case 0:
		eq.StartDate = ""
	case 1:
		eq.StartDate = "garbage"
	default:
		start := day("2020-01-01").AddDate(0, 0, r.IntN(2500))
		eq.StartDate = models.DateString(start.Format(models.DateLayout))
	}
	return eq
}

func TestGenerate_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	for round := 0; round < 200; round++ {
		var fleet []models.Equipment
		for i := 0; i < 6; i++ {
			fleet = append(fleet, randomEquipment(r, fmt.Sprintf("eq-%d-%d", round, i)))
		}
		today := day("2024-01-01").AddDate(0, 0, r.IntN(900))
		opts := Options{Horizon: Horizon{Months: 1 + r.IntN(18)}}
		end := opts.Horizon.End(today)

		occs := Generate(fleet, today, opts)

		// determinism
		assert.Equal(t, occs, Generate(fleet, today, opts))

		lastPeriodic := map[string]time.Time{}
		for i, o := range occs {
			assert.False(t, o.Date.After(end), "horizon bound")
			assert.False(t, o.Date.Before(today), "no past occurrences")
			if i > 0 {
				assert.False(t, o.Date.Before(occs[i-1].Date), "sorted by date")
			}
			if o.Kind != models.KindPeriodic {
				continue
			}
			if prev, ok := lastPeriodic[o.EquipmentID]; ok {
				var eq models.Equipment
				for _, e := range fleet {
					if string(e.ID) == o.EquipmentID {
						eq = e
					}
				}
				assert.Equal(t, eq.PeriodicDays.Int(), int64(daysBetween(prev, o.Date)), "periodic spacing")
			}
			lastPeriodic[o.EquipmentID] = o.Date
		}
	}
}

func TestGenerate_Isolation(t *testing.T) {
	good := models.Equipment{ID: "good", MaintenanceType: models.MaintenanceBoth, PeriodicDays: 14, MaintenanceHour: 100, WorkingHours: 40, StartDate: "2024-02-02"}
	bad := models.Equipment{ID: "bad", MaintenanceType: models.MaintenanceBoth, PeriodicDays: 14, MaintenanceHour: 100, WorkingHours: 400}
	today := day("2024-06-15")

	alone := Generate([]models.Equipment{good}, today, Options{})
	mixed := Generate([]models.Equipment{bad, good, bad}, today, Options{})
	assert.Equal(t, alone, mixed)
	for _, o := range mixed {
		assert.False(t, strings.HasPrefix(o.EquipmentID, "bad"))
	}
}

func TestGenerate_ZoneWithoutMidnight(t *testing.T) {
	// America/Santiago skips 00:00 on 2024-09-08.
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	today := time.Date(2024, 9, 1, 8, 0, 0, 0, loc)

	eq := models.Equipment{ID: "S", MaintenanceType: models.MaintenancePeriodic, PeriodicDays: 1, StartDate: "2024-09-01"}
	occs := Generate([]models.Equipment{eq}, today, Options{Horizon: Horizon{Days: 30}})
	require.Len(t, occs, 31)

	seen := make(map[string]bool)
	for i, o := range occs {
		want := time.Date(2024, 9, 1+i, 0, 0, 0, 0, time.UTC)
		assert.True(t, o.Date.Equal(want), "occurrence %d on %s", i, o.Date)
		assert.False(t, seen[o.Key()], "duplicate key %s", o.Key())
		seen[o.Key()] = true
	}
	assert.Equal(t, "S_2024-09-08", occs[7].Key())
	assert.Equal(t, "S_2024-10-01", occs[30].Key())

	hourly := models.Equipment{ID: "H", MaintenanceType: models.MaintenanceHourly, MaintenanceHour: 80, StartDate: "2024-01-01"}
	occs = Generate([]models.Equipment{hourly}, today, Options{})
	require.Len(t, occs, 1)
	assert.Equal(t, "H_2024-09-11", occs[0].Key())
}

func TestToday_ReadsDayInClockLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	got := Today(FixedClock(time.Date(2024, 9, 8, 1, 30, 0, 0, loc)))
	assert.True(t, got.Equal(time.Date(2024, 9, 8, 0, 0, 0, 0, time.UTC)))

	// 23:30 in Santiago is already the next day in UTC; the local day wins.
	got = Today(FixedClock(time.Date(2024, 9, 9, 23, 30, 0, 0, loc)))
	assert.Equal(t, "2024-09-09", got.Format(models.DateLayout))
}
