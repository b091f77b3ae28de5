package model

import (
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"livementor_backend/pkg/billing"
)

type Course struct {
	gorm.Model
	Title       string `json:"title" gorm:"not null"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
	Instructor  string `json:"instructor"`

	// One-time purchase price.
	Price    decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Currency string          `json:"currency" gorm:"size:3;not null;default:'USD'"`

	// Subscription pricing.
	HourlyRate        decimal.Decimal                             `json:"hourlyRate" gorm:"type:numeric(12,2);not null"`
	FormatMultipliers datatypes.JSONType[billing.MultiplierTable] `json:"formatMultipliers"`

	MinSessionsPerWeek int     `json:"minSessionsPerWeek" gorm:"not null;default:1"`
	MaxSessionsPerWeek int     `json:"maxSessionsPerWeek" gorm:"not null;default:5"`
	MinHoursPerSession float64 `json:"minHoursPerSession" gorm:"not null;default:0.5"`
	MaxHoursPerSession float64 `json:"maxHoursPerSession" gorm:"not null;default:3"`
	TotalHoursLimit    float64 `json:"totalHoursLimit" gorm:"not null;default:10"`

	// MaxStudents of 0 means uncapped.
	MaxStudents        int  `json:"maxStudents" gorm:"not null;default:0"`
	CurrentEnrollments int  `json:"currentEnrollments" gorm:"not null;default:0"`
	Active             bool `json:"active" gorm:"not null;default:true"`
}

// BeforeCreate derives the slug from the title when none is given.
func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.Slug == "" {
		s := slug.Make(c.Title)

		var count int64
		tx.Model(&Course{}).Where("slug = ?", s).Count(&count)
		if count > 0 {
			s = s + "-" + c.CreatedAt.Format("20060102")
		}
		c.Slug = s
	}
	return nil
}

func (c *Course) Bounds() billing.Bounds {
	return billing.Bounds{
		MinSessionsPerWeek: c.MinSessionsPerWeek,
		MaxSessionsPerWeek: c.MaxSessionsPerWeek,
		MinHoursPerSession: c.MinHoursPerSession,
		MaxHoursPerSession: c.MaxHoursPerSession,
		TotalHoursLimit:    c.TotalHoursLimit,
	}
}

// Multipliers returns the course's format table, or the default one when
// none is stored.
func (c *Course) Multipliers() billing.MultiplierTable {
	if m := c.FormatMultipliers.Data(); len(m) > 0 {
		return m
	}
	return billing.DefaultMultipliers
}

func (c *Course) HasCapacity() bool {
	return c.MaxStudents == 0 || c.CurrentEnrollments < c.MaxStudents
}
