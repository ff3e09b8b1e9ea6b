package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Status is the temporal classification of an occurrence relative to today.
type Status string

const (
	StatusOverdue  Status = "overdue"
	StatusToday    Status = "today"
	StatusUpcoming Status = "upcoming"
	// StatusCompleted marks a completed occurrence dated before today.
	StatusCompleted Status = "completed"
)

// Classify returns the status of an occurrence dated date. It must be
// recomputed whenever today changes.
func Classify(date, today time.Time, completed bool) Status {
	d, t := DateOf(date), DateOf(today)
	switch {
	case d.Equal(t):
		return StatusToday
	case d.After(t):
		return StatusUpcoming
	case completed:
		return StatusCompleted
	default:
		return StatusOverdue
	}
}

// Item is an occurrence enriched with its recorded state.
type Item struct {
	models.Occurrence
	Key         string     `json:"key"`
	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"`
	CompletedBy string     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	CommentBy   string     `json:"comment_by,omitempty"`
	CommentAt   *time.Time `json:"comment_at,omitempty"`
}

// Section groups the items of one calendar month.
type Section struct {
	Title string     `json:"title"`
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Items []Item     `json:"items"`
}

// ReconcileOptions control filtering and labelling.
type ReconcileOptions struct {
	ShowCompleted bool
	Locale        string
}

// Reconcile merges occurrences with their records, hides completed ones unless
// requested and groups the rest by month. Sections are chronological; items
// keep the order of occs.
func Reconcile(occs []models.Occurrence, records map[string]models.MaintenanceRecord, today time.Time, opts ReconcileOptions) []Section {
	var sections []Section
	index := make(map[int]int)

	for _, occ := range occs {
		key := occ.Key()
		rec, found := records[key]
		if found && rec.Completed && !opts.ShowCompleted {
			continue
		}

		item := Item{Occurrence: occ, Key: key}
		if found {
			item.Completed = rec.Completed
			item.CompletedBy = rec.CompletedBy
			item.CompletedAt = rec.CompletedAt
			item.Comment = rec.Comment
			item.CommentBy = rec.CommentBy
			item.CommentAt = rec.CommentAt
		}
		item.Status = Classify(occ.Date, today, item.Completed)

		y, m, _ := occ.Date.Date()
		month := y*12 + int(m) - 1
		i, ok := index[month]
		if !ok {
			sections = append(sections, Section{
				Title: MonthTitle(y, m, opts.Locale),
				Year:  y,
				Month: m,
			})
			i = len(sections) - 1
			index[month] = i
		}
		sections[i].Items = append(sections[i].Items, item)
	}

	slices.SortStableFunc(sections, func(a, b Section) int {
		return (a.Year*12 + int(a.Month)) - (b.Year*12 + int(b.Month))
	})
	return sections
}

// Items flattens sections back into one list.
func Items(sections []Section) []Item {
	var out []Item
	for _, s := range sections {
		out = append(out, s.Items...)
	}
	return out
}

// Summary counts items by status.
type Summary struct {
	Overdue   int `json:"overdue"`
	Today     int `json:"today"`
	Upcoming  int `json:"upcoming"`
	Completed int `json:"completed"`
}

// Summarize counts the items of sections. Completed items are counted once
// under Completed regardless of their date.
func Summarize(sections []Section) Summary {
	var s Summary
	for _, it := range Items(sections) {
		switch {
		case it.Completed:
			s.Completed++
		case it.Status == StatusOverdue:
			s.Overdue++
		case it.Status == StatusToday:
			s.Today++
		default:
			s.Upcoming++
		}
	}
	return s
}

var monthNames = map[string][12]string{
	"tr": {"Ocak", "Şubat", "Mart", "Nisan", "Mayıs", "Haziran", "Temmuz", "Ağustos", "Eylül", "Ekim", "Kasım", "Aralık"},
	"en": {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
}

// DefaultLocale is used for section titles when none is configured.
const DefaultLocale = "tr"

// MonthTitle renders "<month> <year>" for locale, falling back to DefaultLocale.
func MonthTitle(year int, month time.Month, locale string) string {
	names, ok := monthNames[locale]
	if !ok {
		names = monthNames[DefaultLocale]
	}
	return fmt.Sprintf("%s %d", names[month-1], year)
}
