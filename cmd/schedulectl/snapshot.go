package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

var errReadOnly = errors.New("snapshot is read-only")

// snapshot is an exported copy of the equipment and record collections. It
// serves the read side of the stores so the schedule can be inspected offline.
type snapshot struct {
	equipment []models.Equipment
	records   map[string]models.MaintenanceRecord
}

type snapshotFile struct {
	Equipment []models.Equipment          `json:"equipment"`
	Records   []models.MaintenanceRecord `json:"records"`
}

// loadSnapshot reads either {"equipment":[...],"records":[...]} or a bare
// array of equipment.
func loadSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f snapshotFile
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &f.Equipment)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s := &snapshot{equipment: f.Equipment, records: make(map[string]models.MaintenanceRecord, len(f.Records))}
	for _, r := range f.Records {
		if r.Key == "" {
			continue
		}
		s.records[r.Key] = r
	}
	return s, nil
}

// FindEquipments returns every equipment; visibility is applied by the caller.
func (s *snapshot) FindEquipments(ctx context.Context, filter bson.M) ([]models.Equipment, error) {
	return append([]models.Equipment(nil), s.equipment...), nil
}

func (s *snapshot) FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error) {
	for _, e := range s.equipment {
		if string(e.ID) == id {
			e := e
			return &e, nil
		}
	}
	return nil, fmt.Errorf("equipment %s: %w", id, db.ErrNotFound)
}

func (s *snapshot) UpdateWorkingHours(ctx context.Context, id string, hours int64, lastUpdated string) error {
	return errReadOnly
}

func (s *snapshot) InsertEquipment(ctx context.Context, eq models.Equipment) (string, error) {
	return "", errReadOnly
}

func (s *snapshot) UpdateEquipment(ctx context.Context, eq models.Equipment) error {
	return errReadOnly
}

func (s *snapshot) WatchEquipments(ctx context.Context) (db.ChangeStream, error) {
	return nil, errReadOnly
}

// FindRecords returns all records; the schedule only looks up its own keys.
func (s *snapshot) FindRecords(ctx context.Context, filter bson.M) (map[string]models.MaintenanceRecord, error) {
	out := make(map[string]models.MaintenanceRecord, len(s.records))
	for k, r := range s.records {
		out[k] = r
	}
	return out, nil
}

func (s *snapshot) FindRecordByKey(ctx context.Context, key string) (*models.MaintenanceRecord, error) {
	r, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", key, db.ErrNotFound)
	}
	return &r, nil
}

func (s *snapshot) UpsertRecord(ctx context.Context, key string, patch models.RecordPatch) error {
	return errReadOnly
}

func (s *snapshot) WatchRecords(ctx context.Context) (db.ChangeStream, error) {
	return nil, errReadOnly
}
