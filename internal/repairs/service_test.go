package repairs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/notify"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
	"go.mongodb.org/mongo-driver/bson"
)

// MockRepairCollection is a mock implementation of db.RepairCollection
type MockRepairCollection struct {
	mock.Mock
}

func (m *MockRepairCollection) FindRepairs(ctx context.Context, filter bson.M) ([]models.Repair, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Repair), args.Error(1)
}

func (m *MockRepairCollection) FindRepairByID(ctx context.Context, id string) (*models.Repair, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repair), args.Error(1)
}

func (m *MockRepairCollection) InsertRepair(ctx context.Context, repair models.Repair) (string, error) {
	args := m.Called(ctx, repair)
	return args.String(0), args.Error(1)
}

func (m *MockRepairCollection) UpdateRepair(ctx context.Context, id string, set bson.M) error {
	return m.Called(ctx, id, set).Error(0)
}

// equipmentStore serves fixed equipment; writes are not used by repairs.
type equipmentStore map[string]models.Equipment

func (s equipmentStore) FindEquipments(ctx context.Context, filter bson.M) ([]models.Equipment, error) {
	return nil, errors.New("not supported")
}

func (s equipmentStore) FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error) {
	eq, ok := s[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &eq, nil
}

func (s equipmentStore) UpdateWorkingHours(ctx context.Context, id string, hours int64, lastUpdated string) error {
	return errors.New("not supported")
}

func (s equipmentStore) InsertEquipment(ctx context.Context, eq models.Equipment) (string, error) {
	return "", errors.New("not supported")
}

func (s equipmentStore) UpdateEquipment(ctx context.Context, eq models.Equipment) error {
	return errors.New("not supported")
}

func (s equipmentStore) WatchEquipments(ctx context.Context) (db.ChangeStream, error) {
	return nil, errors.New("not supported")
}

type recordingNotifier struct {
	notices []notify.Notice
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, notice notify.Notice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

var (
	now       = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	admin     = &models.User{ID: "u0", Name: "Ayşe", Role: models.RoleMainAdmin}
	shipAdmin = &models.User{ID: "u1", Name: "Kaptan", Role: models.RoleShipAdmin, ShipID: "s1"}
	crew      = &models.User{ID: "u9", Username: "mert", Email: "mert@ship.io", Role: models.RoleCrew}

	fleet = equipmentStore{
		"A": {ID: "A", ShipID: "s1", Ship: "Deniz", Type: "Pump", Responsible: "mert"},
		"B": {ID: "B", ShipID: "s2", Type: "Generator"},
	}
)

func newTestService(repairs *MockRepairCollection, notifier notify.Notifier, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger, _ = test.NewNullLogger()
	}
	return NewService(repairs, fleet, Config{
		Notifier: notifier,
		Clock:    schedule.FixedClock(now),
		Logger:   logger,
	})
}

func TestList(t *testing.T) {
	repairs := new(MockRepairCollection)
	stored := []models.Repair{
		{ID: "r1", ShipID: "s1", Status: models.RepairReported},
		{ID: "r2", ShipID: "s1", Status: models.RepairResolved},
		{ID: "r3", ShipID: "s2", Status: models.RepairInProgress},
	}
	repairs.On("FindRepairs", mock.Anything, bson.M{"shipId": "s1"}).Return(stored, nil)
	svc := newTestService(repairs, &recordingNotifier{}, nil)

	open, err := svc.List(context.Background(), shipAdmin, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.DocID("r1"), open[0].ID)

	all, err := svc.List(context.Background(), shipAdmin, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	repairs.On("FindRepairs", mock.Anything, bson.M{"createdBy": "u9"}).Return(nil, errors.New("mongo down"))
	_, err = svc.List(context.Background(), crew, false)
	assert.ErrorContains(t, err, "mongo down")
}

func TestReport(t *testing.T) {
	t.Run("crew reports on responsible equipment", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("InsertRepair", mock.Anything, mock.MatchedBy(func(r models.Repair) bool {
			return r.EquipmentID == "A" && r.EquipmentName == "Deniz - Pump" && r.ShipID == "s1" &&
				r.Status == models.RepairReported && r.CreatedBy == "u9" && r.CreatedByName == "mert" &&
				r.Description == "oil leak" && r.ReportedAt.Equal(now)
		})).Return("665f1c2e9b1e8a3d4c5b6a79", nil)
		notifier := &recordingNotifier{}
		svc := newTestService(repairs, notifier, nil)

		r, err := svc.Report(context.Background(), crew, ReportInput{EquipmentID: "A", Description: "  oil leak "})
		require.NoError(t, err)
		assert.Equal(t, models.DocID("665f1c2e9b1e8a3d4c5b6a79"), r.ID)
		repairs.AssertExpectations(t)

		require.Len(t, notifier.notices, 1)
		n := notifier.notices[0]
		assert.Equal(t, "665f1c2e9b1e8a3d4c5b6a79", n.RepairID)
		assert.Equal(t, models.RepairReported, n.Status)
		assert.Equal(t, "s1", n.ShipID)
		assert.Equal(t, "mert", n.Actor)
	})

	t.Run("keeps the given report time", func(t *testing.T) {
		at := time.Date(2024, 2, 28, 23, 0, 0, 0, time.FixedZone("TRT", 3*3600))
		repairs := new(MockRepairCollection)
		repairs.On("InsertRepair", mock.Anything, mock.MatchedBy(func(r models.Repair) bool {
			return r.ReportedAt.Equal(at) && r.EquipmentName == "Generator"
		})).Return("id", nil)
		svc := newTestService(repairs, &recordingNotifier{}, nil)

		_, err := svc.Report(context.Background(), admin, ReportInput{EquipmentID: "B", Description: "noise", ReportedAt: &at})
		require.NoError(t, err)
		repairs.AssertExpectations(t)
	})

	t.Run("rejections", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		svc := newTestService(repairs, &recordingNotifier{}, nil)
		ctx := context.Background()

		_, err := svc.Report(ctx, admin, ReportInput{EquipmentID: "A", Description: " "})
		assert.ErrorIs(t, err, ErrInvalidRepair)
		_, err = svc.Report(ctx, admin, ReportInput{Description: "leak"})
		assert.ErrorIs(t, err, ErrInvalidRepair)
		_, err = svc.Report(ctx, admin, ReportInput{EquipmentID: "Z", Description: "leak"})
		assert.ErrorIs(t, err, ErrEquipmentNotFound)
		_, err = svc.Report(ctx, shipAdmin, ReportInput{EquipmentID: "B", Description: "leak"})
		assert.ErrorIs(t, err, ErrForbidden)
		repairs.AssertNotCalled(t, "InsertRepair", mock.Anything, mock.Anything)
	})

	t.Run("notice failure is logged", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("InsertRepair", mock.Anything, mock.Anything).Return("r1", nil)
		logger, hook := test.NewNullLogger()
		svc := newTestService(repairs, &recordingNotifier{err: errors.New("broker offline")}, logger)

		_, err := svc.Report(context.Background(), admin, ReportInput{EquipmentID: "A", Description: "leak"})
		require.NoError(t, err)
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		assert.Equal(t, "r1", hook.LastEntry().Data["repair_id"])
	})
}

func TestAdvance(t *testing.T) {
	reported := func() *models.Repair {
		return &models.Repair{ID: "r1", EquipmentID: "A", ShipID: "s1", Description: "leak", Status: models.RepairReported, CreatedBy: "u9"}
	}

	t.Run("reported to inprogress stamps startedAt", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "r1").Return(reported(), nil)
		repairs.On("UpdateRepair", mock.Anything, "r1", bson.M{"status": "inprogress", "updatedAt": now, "startedAt": now}).Return(nil)
		notifier := &recordingNotifier{}
		svc := newTestService(repairs, notifier, nil)

		r, err := svc.Advance(context.Background(), shipAdmin, "r1", models.RepairInProgress)
		require.NoError(t, err)
		assert.Equal(t, models.RepairInProgress, r.Status)
		require.NotNil(t, r.StartedAt)
		assert.Nil(t, r.ResolvedAt)
		assert.Equal(t, "leak", r.Description)
		repairs.AssertExpectations(t)
		require.Len(t, notifier.notices, 1)
		assert.Equal(t, "Repair in progress", notifier.notices[0].Title)
	})

	t.Run("inprogress to resolved stamps resolvedAt", func(t *testing.T) {
		started := now.Add(-time.Hour)
		current := reported()
		current.Status = models.RepairInProgress
		current.StartedAt = &started
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "r1").Return(current, nil)
		repairs.On("UpdateRepair", mock.Anything, "r1", bson.M{"status": "resolved", "updatedAt": now, "resolvedAt": now}).Return(nil)
		svc := newTestService(repairs, &recordingNotifier{}, nil)

		r, err := svc.Advance(context.Background(), crew, "r1", models.RepairResolved)
		require.NoError(t, err)
		assert.Equal(t, started, *r.StartedAt)
		assert.Equal(t, now, *r.ResolvedAt)
	})

	t.Run("skipping or repeating a step", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "r1").Return(reported(), nil)
		svc := newTestService(repairs, &recordingNotifier{}, nil)

		_, err := svc.Advance(context.Background(), admin, "r1", models.RepairResolved)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = svc.Advance(context.Background(), admin, "r1", models.RepairReported)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = svc.Advance(context.Background(), admin, "r1", "closed")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		repairs.AssertNotCalled(t, "UpdateRepair", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not visible", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "r1").Return(reported(), nil)
		svc := newTestService(repairs, &recordingNotifier{}, nil)

		other := &models.User{ID: "u5", Role: models.RoleCrew}
		_, err := svc.Advance(context.Background(), other, "r1", models.RepairInProgress)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown repair", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "nope").Return(nil, db.ErrNotFound)
		svc := newTestService(repairs, &recordingNotifier{}, nil)

		_, err := svc.Advance(context.Background(), admin, "nope", models.RepairInProgress)
		assert.ErrorIs(t, err, ErrRepairNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		repairs := new(MockRepairCollection)
		repairs.On("FindRepairByID", mock.Anything, "r1").Return(reported(), nil)
		repairs.On("UpdateRepair", mock.Anything, "r1", mock.Anything).Return(errors.New("write rejected"))
		notifier := &recordingNotifier{}
		svc := newTestService(repairs, notifier, nil)

		_, err := svc.Advance(context.Background(), admin, "r1", models.RepairInProgress)
		assert.ErrorContains(t, err, "write rejected")
		assert.Empty(t, notifier.notices)
	})
}

func TestEquipmentName(t *testing.T) {
	assert.Equal(t, "Deniz - Pump", equipmentName(models.Equipment{ID: "A", Ship: "Deniz", Type: "Pump"}))
	assert.Equal(t, "Pump", equipmentName(models.Equipment{ID: "A", Type: "Pump"}))
	assert.Equal(t, "Deniz", equipmentName(models.Equipment{ID: "A", Ship: "Deniz"}))
	assert.Equal(t, "A", equipmentName(models.Equipment{ID: "A"}))
}
