// Package testutil wires throwaway infrastructure for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"anoa.com/marketchat/internal/bootstrap"
	"anoa.com/marketchat/internal/entity"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every table
// migrated. A single connection keeps the in-memory database alive and
// shared; code under test must only use the tx handle inside transactions.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, bootstrap.Migrate(db))
	require.NoError(t, bootstrap.MigrateListings(db))
	return db
}

// CreateListing inserts an active listing owned by ownerID.
func CreateListing(t *testing.T, db *gorm.DB, ownerID uuid.UUID, title string) *entity.Listing {
	t.Helper()
	listing := &entity.Listing{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   title,
		Status:  "active",
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}
