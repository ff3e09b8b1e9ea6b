package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaintenanceType is the maintenance policy of a piece of equipment.
type MaintenanceType string

const (
	MaintenancePeriodic MaintenanceType = "Periodic"
	MaintenanceHourly   MaintenanceType = "Hourly"
	MaintenanceBoth     MaintenanceType = "Both"
)

// Normalize maps the labels written by the mobile client onto the canonical values.
func (t MaintenanceType) Normalize() MaintenanceType {
	switch strings.TrimSpace(string(t)) {
	case "Periodic", "Periyodik", "periodic":
		return MaintenancePeriodic
	case "Hourly", "Saatlik", "hourly":
		return MaintenanceHourly
	case "Both", "Her İkisi", "Her Ikisi", "both":
		return MaintenanceBoth
	default:
		return ""
	}
}

// Label returns the label the mobile client stores and displays.
func (t MaintenanceType) Label() string {
	switch t.Normalize() {
	case MaintenancePeriodic:
		return "Periyodik"
	case MaintenanceHourly:
		return "Saatlik"
	case MaintenanceBoth:
		return "Her İkisi"
	default:
		return ""
	}
}

// HasPeriodic reports whether the policy schedules by calendar days.
func (t MaintenanceType) HasPeriodic() bool {
	n := t.Normalize()
	return n == MaintenancePeriodic || n == MaintenanceBoth
}

// HasHourly reports whether the policy schedules by operating hours.
func (t MaintenanceType) HasHourly() bool {
	n := t.Normalize()
	return n == MaintenanceHourly || n == MaintenanceBoth
}

// Count is a non-negative integer field that tolerates the loose encodings found
// in equipment documents: numbers, numeric strings, null. Anything that cannot be
// read as a number decodes to zero.
type Count int64

// ParseCount parses s the same way stored string values are decoded.
func ParseCount(s string) Count {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return countOf(float64(n))
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return countOf(f)
	}
	return 0
}

func countOf(f float64) Count {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return 0
	}
	return Count(math.Floor(f))
}

// Int returns the value as int64.
func (c Count) Int() int64 {
	if c < 0 {
		return 0
	}
	return int64(c)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (c *Count) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Int32:
		*c = countOf(float64(rv.Int32()))
	case bsontype.Int64:
		*c = countOf(float64(rv.Int64()))
	case bsontype.Double:
		*c = countOf(rv.Double())
	case bsontype.String:
		*c = ParseCount(rv.StringValue())
	case bsontype.Decimal128:
		*c = ParseCount(rv.Decimal128().String())
	default:
		*c = 0
	}
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (c Count) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(c.Int())
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (c *Count) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		*c = 0
		return nil
	}
	switch x := v.(type) {
	case float64:
		*c = countOf(x)
	case string:
		*c = ParseCount(x)
	default:
		*c = 0
	}
	return nil
}

// DocID is a document identifier stored either as a string or as an ObjectID.
type DocID string

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (id *DocID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.ObjectID:
		*id = DocID(rv.ObjectID().Hex())
	case bsontype.String:
		*id = DocID(rv.StringValue())
	case bsontype.Int32:
		*id = DocID(strconv.FormatInt(int64(rv.Int32()), 10))
	case bsontype.Int64:
		*id = DocID(strconv.FormatInt(rv.Int64(), 10))
	default:
		*id = ""
	}
	return nil
}

// Filter returns a query matching the identifier in either representation.
func (id DocID) Filter() bson.M {
	if oid, err := primitive.ObjectIDFromHex(string(id)); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, string(id)}}}
	}
	return bson.M{"_id": string(id)}
}

// DateString is a calendar date kept as text. BSON datetimes are converted to
// their UTC calendar day on decode.
type DateString string

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (d *DateString) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*d = DateString(rv.StringValue())
	case bsontype.DateTime:
		*d = DateString(time.UnixMilli(rv.DateTime()).UTC().Format(DateLayout))
	default:
		*d = ""
	}
	return nil
}

// DateLayout is the ISO calendar date format used for keys and stored dates.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"2006/01/02",
}

// Day parses the date and returns midnight of that calendar day in loc.
func (d DateString) Day(loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, day := t.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, loc), true
		}
	}
	return time.Time{}, false
}

// Equipment is a physical asset on a ship that requires maintenance.
type Equipment struct {
	ID              DocID           `bson:"_id" json:"id"`
	ShipID          string          `bson:"shipId" json:"ship_id"`
	Ship            string          `bson:"ship" json:"ship"`
	Type            string          `bson:"type" json:"type"`
	Brand           string          `bson:"brand" json:"brand"`
	SerialNo        string          `bson:"serialNo" json:"serial_no"`
	Responsible     string          `bson:"responsible" json:"responsible"`
	WorkingHours    Count           `bson:"workingHours" json:"working_hours"`
	MaintenanceType MaintenanceType `bson:"maintenanceType" json:"maintenance_type"`
	PeriodicDays    Count           `bson:"periodicDays" json:"periodic_days"`
	MaintenanceHour Count           `bson:"maintenanceHour" json:"maintenance_hour"`
	StartDate       DateString      `bson:"startDate" json:"start_date"`
	LastUpdated     DateString      `bson:"lastUpdated" json:"last_updated"`
}

// Fields returns the stored fields of e without its id, as written on create
// and edit.
func (e Equipment) Fields() bson.M {
	return bson.M{
		"shipId":          e.ShipID,
		"ship":            e.Ship,
		"type":            e.Type,
		"brand":           e.Brand,
		"serialNo":        e.SerialNo,
		"responsible":     e.Responsible,
		"workingHours":    e.WorkingHours.Int(),
		"maintenanceType": string(e.MaintenanceType),
		"periodicDays":    e.PeriodicDays.Int(),
		"maintenanceHour": e.MaintenanceHour.Int(),
		"startDate":       string(e.StartDate),
		"lastUpdated":     string(e.LastUpdated),
	}
}

// text decodes any scalar BSON value as a string. Equipment documents written
// by the mobile client sometimes store serial numbers or ship ids as numbers.
type text string

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (s *text) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*s = text(rv.StringValue())
	case bsontype.Int32:
		*s = text(strconv.FormatInt(int64(rv.Int32()), 10))
	case bsontype.Int64:
		*s = text(strconv.FormatInt(rv.Int64(), 10))
	case bsontype.Double:
		*s = text(strconv.FormatFloat(rv.Double(), 'f', -1, 64))
	case bsontype.Decimal128:
		*s = text(rv.Decimal128().String())
	case bsontype.Boolean:
		*s = text(strconv.FormatBool(rv.Boolean()))
	case bsontype.ObjectID:
		*s = text(rv.ObjectID().Hex())
	default:
		*s = ""
	}
	return nil
}

type equipmentDoc struct {
	ID              DocID      `bson:"_id"`
	ShipID          text       `bson:"shipId"`
	Ship            text       `bson:"ship"`
	Type            text       `bson:"type"`
	Brand           text       `bson:"brand"`
	SerialNo        text       `bson:"serialNo"`
	Responsible     text       `bson:"responsible"`
	WorkingHours    Count      `bson:"workingHours"`
	MaintenanceType text       `bson:"maintenanceType"`
	PeriodicDays    Count      `bson:"periodicDays"`
	MaintenanceHour Count      `bson:"maintenanceHour"`
	StartDate       DateString `bson:"startDate"`
	LastUpdated     DateString `bson:"lastUpdated"`
}

// UnmarshalBSON implements bson.Unmarshaler. Every field decodes leniently, so
// one oddly typed field never rejects the whole document.
func (e *Equipment) UnmarshalBSON(data []byte) error {
	var d equipmentDoc
	if err := bson.Unmarshal(data, &d); err != nil {
		return err
	}
	*e = Equipment{
		ID:              d.ID,
		ShipID:          string(d.ShipID),
		Ship:            string(d.Ship),
		Type:            string(d.Type),
		Brand:           string(d.Brand),
		SerialNo:        string(d.SerialNo),
		Responsible:     string(d.Responsible),
		WorkingHours:    d.WorkingHours,
		MaintenanceType: MaintenanceType(d.MaintenanceType),
		PeriodicDays:    d.PeriodicDays,
		MaintenanceHour: d.MaintenanceHour,
		StartDate:       d.StartDate,
		LastUpdated:     d.LastUpdated,
	}
	return nil
}
