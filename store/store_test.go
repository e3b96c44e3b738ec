package store

import (
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadflow/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Lead{},
		&models.LeadHistory{},
		&models.Class{},
		&models.ClassStudent{},
		&models.Attendance{},
		&models.Mark{},
		&models.Notification{},
	))
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newLeadStore(t *testing.T) *LeadStore {
	t.Helper()
	return NewLeadStore(newTestDB(t), newTestLogger())
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	user := models.User{
		Email:        email,
		PasswordHash: "x",
		Name:         email,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createLead(t *testing.T, s *LeadStore, name string, ownerID *uint, byUserID uint) *models.Lead {
	t.Helper()
	lead := models.Lead{
		Name:           name,
		Status:         models.StatusNew,
		CurrentOwnerID: ownerID,
		IsActive:       true,
	}
	require.NoError(t, s.CreateLead(&lead, byUserID))
	return &lead
}

func historyFor(t *testing.T, db *gorm.DB, leadID uint) []models.LeadHistory {
	t.Helper()
	var history []models.LeadHistory
	require.NoError(t, db.Where("lead_id = ?", leadID).Order("created_at, id").Find(&history).Error)
	return history
}
