package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoEquipmentCollection wraps the equipment collection.
type MongoEquipmentCollection struct {
	Collection *mongo.Collection
	Log        logrus.FieldLogger
}

// FindEquipments returns all equipment matching filter.
func (c *MongoEquipmentCollection) FindEquipments(ctx context.Context, filter bson.M) ([]models.Equipment, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find equipments: %w", err)
	}
	defer cursor.Close(ctx)

	out, err := decodeAll[models.Equipment](ctx, cursor, c.Log, EquipmentCollectionName)
	if err != nil {
		return nil, fmt.Errorf("decode equipments: %w", err)
	}
	return out, nil
}

// FindEquipmentByID finds equipment by its ID.
func (c *MongoEquipmentCollection) FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	var eq models.Equipment
	err := c.Collection.FindOne(ctx, models.DocID(id).Filter()).Decode(&eq)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("equipment %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &eq, nil
}

// UpdateWorkingHours sets the operating hours of one piece of equipment.
func (c *MongoEquipmentCollection) UpdateWorkingHours(ctx context.Context, id string, hours int64, lastUpdated string) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx, models.DocID(id).Filter(), bson.M{
		"$set": bson.M{"workingHours": hours, "lastUpdated": lastUpdated},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("equipment %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertEquipment stores new equipment under a generated ObjectID and returns
// its hex id.
func (c *MongoEquipmentCollection) InsertEquipment(ctx context.Context, eq models.Equipment) (string, error) {
	if c.Collection == nil {
		return "", ErrNilCollection
	}
	oid := primitive.NewObjectID()
	doc := eq.Fields()
	doc["_id"] = oid
	doc["createdAt"] = time.Now().UTC()
	if _, err := c.Collection.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert equipment: %w", err)
	}
	return oid.Hex(), nil
}

// UpdateEquipment merges the editable fields of eq into the stored document.
// Fields the form does not carry, such as createdAt, are kept.
func (c *MongoEquipmentCollection) UpdateEquipment(ctx context.Context, eq models.Equipment) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx, eq.ID.Filter(), bson.M{"$set": eq.Fields()})
	if err != nil {
		return fmt.Errorf("update equipment %s: %w", eq.ID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("equipment %s: %w", eq.ID, ErrNotFound)
	}
	return nil
}

// WatchEquipments opens a change stream over the collection.
func (c *MongoEquipmentCollection) WatchEquipments(ctx context.Context) (ChangeStream, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	stream, err := c.Collection.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}
	return stream, nil
}
