package seed

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/billing"
)

// Courses is the starter catalog.
func Courses() []model.Course {
	return []model.Course{
		{
			Title:              "Go Backend Mentorship",
			Slug:               "go-backend-mentorship",
			Description:        "Build production services in Go with a senior engineer reviewing every step.",
			Instructor:         "LiveMentor Faculty",
			Price:              decimal.NewFromInt(199),
			Currency:           "USD",
			HourlyRate:         decimal.NewFromInt(40),
			FormatMultipliers:  datatypes.NewJSONType(billing.DefaultMultipliers),
			MinSessionsPerWeek: 1,
			MaxSessionsPerWeek: 5,
			MinHoursPerSession: 0.5,
			MaxHoursPerSession: 3,
			TotalHoursLimit:    10,
			MaxStudents:        20,
			Active:             true,
		},
		{
			Title:              "Frontend Foundations",
			Slug:               "frontend-foundations",
			Description:        "HTML, CSS and modern JavaScript, one live session at a time.",
			Instructor:         "LiveMentor Faculty",
			Price:              decimal.NewFromInt(149),
			Currency:           "USD",
			HourlyRate:         decimal.NewFromInt(30),
			FormatMultipliers:  datatypes.NewJSONType(billing.DefaultMultipliers),
			MinSessionsPerWeek: 1,
			MaxSessionsPerWeek: 4,
			MinHoursPerSession: 1,
			MaxHoursPerSession: 2,
			TotalHoursLimit:    8,
			Active:             true,
		},
		{
			Title:              "Data Engineering Bootcamp",
			Slug:               "data-engineering-bootcamp",
			Description:        "Pipelines, warehouses and orchestration with weekly group labs.",
			Instructor:         "LiveMentor Faculty",
			Price:              decimal.NewFromInt(299),
			Currency:           "USD",
			HourlyRate:         decimal.NewFromInt(55),
			FormatMultipliers:  datatypes.NewJSONType(billing.DefaultMultipliers),
			MinSessionsPerWeek: 1,
			MaxSessionsPerWeek: 3,
			MinHoursPerSession: 1,
			MaxHoursPerSession: 3,
			TotalHoursLimit:    9,
			MaxStudents:        12,
			Active:             true,
		},
	}
}

// SeedCourses inserts the starter catalog, leaving existing courses alone.
func SeedCourses(db *gorm.DB, log *zap.Logger) error {
	for _, course := range Courses() {
		course := course
		result := db.Where(model.Course{Slug: course.Slug}).FirstOrCreate(&course)
		if result.Error != nil {
			log.Error("seed course failed", zap.String("slug", course.Slug), zap.Error(result.Error))
			return result.Error
		}
		if result.RowsAffected > 0 {
			log.Info("seeded course", zap.String("slug", course.Slug))
		}
	}
	return nil
}
