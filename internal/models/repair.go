package models

import "time"

// RepairStatus is the lifecycle state of a repair.
type RepairStatus string

const (
	RepairReported   RepairStatus = "reported"
	RepairInProgress RepairStatus = "inprogress"
	RepairResolved   RepairStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s RepairStatus) Valid() bool {
	switch s {
	case RepairReported, RepairInProgress, RepairResolved:
		return true
	default:
		return false
	}
}

// Next returns the status that follows s, or "" when s is final or unknown.
func (s RepairStatus) Next() RepairStatus {
	switch s {
	case RepairReported:
		return RepairInProgress
	case RepairInProgress:
		return RepairResolved
	default:
		return ""
	}
}

// Repair is a fault reported against a piece of equipment. Documents written
// before the status field existed read as reported.
type Repair struct {
	ID            DocID        `bson:"_id" json:"id"`
	EquipmentID   string       `bson:"equipmentId" json:"equipment_id"`
	EquipmentName string       `bson:"equipmentName" json:"equipment_name"`
	ShipID        string       `bson:"shipId" json:"ship_id,omitempty"`
	Description   string       `bson:"description" json:"description"`
	Status        RepairStatus `bson:"status" json:"status"`
	ReportedAt    time.Time    `bson:"reportedAt" json:"reported_at"`
	StartedAt     *time.Time   `bson:"startedAt,omitempty" json:"started_at,omitempty"`
	ResolvedAt    *time.Time   `bson:"resolvedAt,omitempty" json:"resolved_at,omitempty"`
	ImageURI      string       `bson:"imageUri,omitempty" json:"image_uri,omitempty"`
	CreatedBy     string       `bson:"createdBy" json:"created_by"`
	CreatedByName string       `bson:"createdByName" json:"created_by_name,omitempty"`
	UpdatedAt     time.Time    `bson:"updatedAt" json:"updated_at"`
}

// Normalize fills defaults of documents written by older clients.
func (r *Repair) Normalize() {
	if !r.Status.Valid() {
		r.Status = RepairReported
	}
	if r.CreatedByName == "" {
		r.CreatedByName = r.CreatedBy
	}
}
