package db

import (
	"context"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// ChangeStream defines the subset of *mongo.ChangeStream the live feeds use.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// EquipmentCollection defines the interface for equipment data operations.
type EquipmentCollection interface {
	FindEquipments(ctx context.Context, filter bson.M) ([]models.Equipment, error)
	FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error)
	UpdateWorkingHours(ctx context.Context, id string, hours int64, lastUpdated string) error
	InsertEquipment(ctx context.Context, eq models.Equipment) (string, error)
	UpdateEquipment(ctx context.Context, eq models.Equipment) error
	WatchEquipments(ctx context.Context) (ChangeStream, error)
}

// RecordCollection defines the interface for maintenance record operations.
type RecordCollection interface {
	FindRecords(ctx context.Context, filter bson.M) (map[string]models.MaintenanceRecord, error)
	FindRecordByKey(ctx context.Context, key string) (*models.MaintenanceRecord, error)
	UpsertRecord(ctx context.Context, key string, patch models.RecordPatch) error
	WatchRecords(ctx context.Context) (ChangeStream, error)
}

// RepairCollection defines the interface for repair log operations.
type RepairCollection interface {
	FindRepairs(ctx context.Context, filter bson.M) ([]models.Repair, error)
	FindRepairByID(ctx context.Context, id string) (*models.Repair, error)
	InsertRepair(ctx context.Context, repair models.Repair) (string, error)
	UpdateRepair(ctx context.Context, id string, set bson.M) error
}
