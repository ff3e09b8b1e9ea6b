package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecordCollection wraps the maintenance record collection. Documents are
// keyed by the occurrence key "<equipmentId>_<YYYY-MM-DD>".
type MongoRecordCollection struct {
	Collection *mongo.Collection
	Log        logrus.FieldLogger
}

// FindRecords returns the records matching filter indexed by key.
func (c *MongoRecordCollection) FindRecords(ctx context.Context, filter bson.M) (map[string]models.MaintenanceRecord, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	list, err := decodeAll[models.MaintenanceRecord](ctx, cursor, c.Log, RecordCollectionName)
	if err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make(map[string]models.MaintenanceRecord, len(list))
	for _, rec := range list {
		out[rec.Key] = rec
	}
	return out, nil
}

// FindRecordByKey finds a record by its occurrence key.
func (c *MongoRecordCollection) FindRecordByKey(ctx context.Context, key string) (*models.MaintenanceRecord, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	var rec models.MaintenanceRecord
	err := c.Collection.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("record %s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// UpsertRecord merges patch into the record at key, creating it if needed.
// Fields absent from the patch keep their stored values.
func (c *MongoRecordCollection) UpsertRecord(ctx context.Context, key string, patch models.RecordPatch) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	set := patch.SetFields()
	if len(set) == 0 {
		return nil
	}
	_, err := c.Collection.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", key, err)
	}
	return nil
}

// WatchRecords opens a change stream over the collection.
func (c *MongoRecordCollection) WatchRecords(ctx context.Context) (ChangeStream, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	stream, err := c.Collection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, err
	}
	return stream, nil
}
