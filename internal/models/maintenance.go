package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// OccurrenceKind tells which policy produced an occurrence.
type OccurrenceKind string

const (
	KindPeriodic OccurrenceKind = "periodic"
	KindHourly   OccurrenceKind = "hourly"
)

// Occurrence is one computed instance of required maintenance. It is derived on
// every generation pass and never stored.
type Occurrence struct {
	EquipmentID   string         `json:"equipment_id"`
	Ship          string         `json:"ship,omitempty"`
	EquipmentType string         `json:"equipment_type,omitempty"`
	Date          time.Time      `json:"date"`
	Reason        string         `json:"reason"`
	Kind          OccurrenceKind `json:"kind"`
	Hours         int64          `json:"hours,omitempty"`
	ServiceNumber int64          `json:"service_number,omitempty"`
	Estimated     bool           `json:"estimated,omitempty"`
}

// Key returns the identifier used to correlate the occurrence with its record.
func (o Occurrence) Key() string {
	return OccurrenceKey(o.EquipmentID, o.Date)
}

// OccurrenceKey builds the record key "<equipmentId>_<YYYY-MM-DD>".
func OccurrenceKey(equipmentID string, date time.Time) string {
	return equipmentID + "_" + date.Format(DateLayout)
}

// SplitOccurrenceKey is the inverse of OccurrenceKey. Equipment ids may contain
// underscores, so the date is taken from the last separator.
func SplitOccurrenceKey(key string) (equipmentID string, date time.Time, ok bool) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", time.Time{}, false
	}
	d, err := time.Parse(DateLayout, key[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return key[:i], d, true
}

// MaintenanceRecord is the user-entered completion and comment state for one
// occurrence key.
type MaintenanceRecord struct {
	Key         string         `json:"key" bson:"_id"`
	EquipmentID string         `json:"equipment_id,omitempty" bson:"equipmentId,omitempty"`
	Date        string         `json:"date,omitempty" bson:"date,omitempty"`
	Kind        OccurrenceKind `json:"kind,omitempty" bson:"kind,omitempty"`
	Reason      string         `json:"reason,omitempty" bson:"reason,omitempty"`
	Completed   bool           `json:"completed" bson:"completed"`
	CompletedBy string         `json:"completed_by,omitempty" bson:"completedBy,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" bson:"completedAt,omitempty"`
	Comment     string         `json:"comment,omitempty" bson:"comment,omitempty"`
	CommentBy   string         `json:"comment_by,omitempty" bson:"commentBy,omitempty"`
	CommentAt   *time.Time     `json:"comment_at,omitempty" bson:"commentAt,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updatedAt"`
}

// RecordPatch is a partial record. Nil fields are left untouched when the patch
// is merged into an existing record.
type RecordPatch struct {
	EquipmentID *string
	Date        *string
	Kind        *OccurrenceKind
	Reason      *string
	Completed   *bool
	CompletedBy *string
	// CompletedAt is written whenever SetCompletedAt is true; a nil value clears it.
	CompletedAt    *time.Time
	SetCompletedAt bool
	Comment        *string
	CommentBy      *string
	CommentAt      *time.Time
	UpdatedAt      time.Time
}

// Apply merges the patch into rec.
func (p RecordPatch) Apply(rec *MaintenanceRecord) {
	if p.EquipmentID != nil {
		rec.EquipmentID = *p.EquipmentID
	}
	if p.Date != nil {
		rec.Date = *p.Date
	}
	if p.Kind != nil {
		rec.Kind = *p.Kind
	}
	if p.Reason != nil {
		rec.Reason = *p.Reason
	}
	if p.Completed != nil {
		rec.Completed = *p.Completed
	}
	if p.CompletedBy != nil {
		rec.CompletedBy = *p.CompletedBy
	}
	if p.SetCompletedAt {
		rec.CompletedAt = p.CompletedAt
	}
	if p.Comment != nil {
		rec.Comment = *p.Comment
	}
	if p.CommentBy != nil {
		rec.CommentBy = *p.CommentBy
	}
	if p.CommentAt != nil {
		rec.CommentAt = p.CommentAt
	}
	if !p.UpdatedAt.IsZero() {
		rec.UpdatedAt = p.UpdatedAt
	}
}

// SetFields renders the patch as the body of a $set update.
func (p RecordPatch) SetFields() bson.M {
	set := bson.M{}
	if p.EquipmentID != nil {
		set["equipmentId"] = *p.EquipmentID
	}
	if p.Date != nil {
		set["date"] = *p.Date
	}
	if p.Kind != nil {
		set["kind"] = *p.Kind
	}
	if p.Reason != nil {
		set["reason"] = *p.Reason
	}
	if p.Completed != nil {
		set["completed"] = *p.Completed
	}
	if p.CompletedBy != nil {
		set["completedBy"] = *p.CompletedBy
	}
	if p.SetCompletedAt {
		if p.CompletedAt != nil {
			set["completedAt"] = *p.CompletedAt
		} else {
			set["completedAt"] = nil
		}
	}
	if p.Comment != nil {
		set["comment"] = *p.Comment
	}
	if p.CommentBy != nil {
		set["commentBy"] = *p.CommentBy
	}
	if p.CommentAt != nil {
		set["commentAt"] = *p.CommentAt
	}
	if !p.UpdatedAt.IsZero() {
		set["updatedAt"] = p.UpdatedAt
	}
	return set
}
