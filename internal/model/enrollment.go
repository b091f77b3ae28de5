package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const PendingStatus = "pending"

// PendingEnrollment exists between checkout creation and confirmation.
type PendingEnrollment struct {
	ID                string          `json:"id" gorm:"primaryKey;size:36"`
	CourseID          uint            `json:"courseId" gorm:"index;not null"`
	StudentName       string          `json:"studentName" gorm:"not null"`
	Email             string          `json:"email" gorm:"index;not null"`
	Phone             string          `json:"phone"`
	CheckoutSessionID string          `json:"checkoutSessionId" gorm:"uniqueIndex;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"size:3;not null"`
	Status            string          `json:"status" gorm:"size:16;not null;default:'pending'"`
	CreatedAt         time.Time       `json:"createdAt" gorm:"index"`
}

func (p *PendingEnrollment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Enrollment struct {
	ID                string          `json:"id" gorm:"primaryKey;size:36"`
	CourseID          uint            `json:"courseId" gorm:"uniqueIndex:idx_enrollment_course_email;not null"`
	StudentName       string          `json:"studentName" gorm:"not null"`
	Email             string          `json:"email" gorm:"uniqueIndex:idx_enrollment_course_email;not null"`
	Phone             string          `json:"phone"`
	CheckoutSessionID string          `json:"checkoutSessionId" gorm:"uniqueIndex;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"size:3;not null"`
	PaymentIntentID   string          `json:"paymentIntentId"`
	AssignedTeacher   string          `json:"assignedTeacher,omitempty"`
	EnrolledAt        time.Time       `json:"enrolledAt"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`

	Course Course `json:"-" gorm:"foreignKey:CourseID"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
