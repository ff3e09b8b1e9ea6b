package db

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestDecodeAll_EquipmentWithNumericText(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.M{"_id": "eq-1", "serialNo": 12345, "shipId": int64(7), "periodicDays": "30", "startDate": "2024-01-01"},
		bson.M{"_id": "eq-2", "brand": "MAN", "type": "Pump"},
	}, nil, nil)
	require.NoError(t, err)

	list, err := decodeAll[models.Equipment](context.Background(), cursor, logger, EquipmentCollectionName)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "12345", list[0].SerialNo)
	assert.Equal(t, "7", list[0].ShipID)
	assert.Equal(t, "MAN", list[1].Brand)
	assert.Empty(t, hook.AllEntries())
}

func TestDecodeAll_SkipsBadDocuments(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.M{"_id": "a_2024-06-01", "completed": true},
		bson.M{"_id": "b_2024-06-01", "completed": true, "completedAt": "yesterday"},
		bson.M{"_id": "c_2024-06-01", "comment": "ok"},
	}, nil, nil)
	require.NoError(t, err)

	list, err := decodeAll[models.MaintenanceRecord](context.Background(), cursor, logger, RecordCollectionName)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a_2024-06-01", list[0].Key)
	assert.Equal(t, "c_2024-06-01", list[1].Key)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, RecordCollectionName, entry.Data["collection"])
	assert.Contains(t, entry.Data["_id"], "b_2024-06-01")
	assert.Error(t, entry.Data[logrus.ErrorKey].(error))
}

func TestDecodeAll_CursorError(t *testing.T) {
	cursor, err := mongo.NewCursorFromDocuments(nil, assert.AnError, nil)
	require.NoError(t, err)

	_, err = decodeAll[models.Equipment](context.Background(), cursor, nil, EquipmentCollectionName)
	assert.ErrorIs(t, err, assert.AnError)
}
