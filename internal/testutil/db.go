// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/database"
)

// NewDB opens a private in-memory sqlite database with every model migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// One connection so every query sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.MigrateDatabase(db, zap.NewNop(), model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedCourse stores a course priced like the catalog's reference course:
// $40/hour, $199 one-time, capped at maxStudents.
func SeedCourse(t *testing.T, db *gorm.DB, maxStudents int) *model.Course {
	t.Helper()

	course := &model.Course{
		Title:              "Go Backend Mentorship",
		Price:              decimal.NewFromInt(199),
		Currency:           "USD",
		HourlyRate:         decimal.NewFromInt(40),
		FormatMultipliers:  datatypes.NewJSONType(billing.DefaultMultipliers),
		MinSessionsPerWeek: 1,
		MaxSessionsPerWeek: 5,
		MinHoursPerSession: 0.5,
		MaxHoursPerSession: 3,
		TotalHoursLimit:    10,
		MaxStudents:        maxStudents,
		Active:             true,
	}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return course
}
