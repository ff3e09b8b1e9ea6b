package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepairCollection wraps the repair log.
type MongoRepairCollection struct {
	Collection *mongo.Collection
	Log        logrus.FieldLogger
}

// FindRepairs returns the repairs matching filter, newest report first.
func (c *MongoRepairCollection) FindRepairs(ctx context.Context, filter bson.M) ([]models.Repair, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "reportedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find repairs: %w", err)
	}
	defer cursor.Close(ctx)

	list, err := decodeAll[models.Repair](ctx, cursor, c.Log, RepairCollectionName)
	if err != nil {
		return nil, fmt.Errorf("decode repairs: %w", err)
	}
	for i := range list {
		list[i].Normalize()
	}
	return list, nil
}

// FindRepairByID finds a repair by its ID.
func (c *MongoRepairCollection) FindRepairByID(ctx context.Context, id string) (*models.Repair, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	var r models.Repair
	err := c.Collection.FindOne(ctx, models.DocID(id).Filter()).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("repair %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	r.Normalize()
	return &r, nil
}

// InsertRepair stores repair under a generated ObjectID and returns its hex id.
func (c *MongoRepairCollection) InsertRepair(ctx context.Context, repair models.Repair) (string, error) {
	if c.Collection == nil {
		return "", ErrNilCollection
	}
	oid := primitive.NewObjectID()
	doc := bson.M{
		"_id":           oid,
		"equipmentId":   repair.EquipmentID,
		"equipmentName": repair.EquipmentName,
		"shipId":        repair.ShipID,
		"description":   repair.Description,
		"status":        string(repair.Status),
		"reportedAt":    repair.ReportedAt,
		"imageUri":      repair.ImageURI,
		"createdBy":     repair.CreatedBy,
		"createdByName": repair.CreatedByName,
		"updatedAt":     repair.UpdatedAt,
	}
	if _, err := c.Collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert repair: %w", err)
	}
	return oid.Hex(), nil
}

// UpdateRepair merges set into the repair at id.
func (c *MongoRepairCollection) UpdateRepair(ctx context.Context, id string, set bson.M) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx, models.DocID(id).Filter(), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update repair %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("repair %s: %w", id, ErrNotFound)
	}
	return nil
}
