package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"livementor_backend/pkg/billing"
)

type SubscriptionStatus string

const (
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	StatusIncomplete: {StatusTrialing, StatusActive, StatusIncompleteExpired},
	StatusTrialing:   {StatusActive, StatusCanceled, StatusUnpaid},
	StatusActive:     {StatusPastDue, StatusCanceled, StatusPaused},
	StatusPastDue:    {StatusActive, StatusUnpaid, StatusCanceled},
	StatusPaused:     {StatusActive, StatusCanceled},
}

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case StatusIncomplete, StatusIncompleteExpired, StatusTrialing, StatusActive,
		StatusPastDue, StatusCanceled, StatusUnpaid, StatusPaused:
		return true
	}
	return false
}

func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusUnpaid || s == StatusIncompleteExpired
}

// CanTransitionTo reports whether next is a legal successor of s. Staying in
// the same status is not a transition.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SubscriptionInvoice is the part of the latest invoice shown to the student.
type SubscriptionInvoice struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	AmountDue  int64     `json:"amountDue"`
	AmountPaid int64     `json:"amountPaid"`
	Currency   string    `json:"currency"`
	HostedURL  string    `json:"hostedUrl,omitempty"`
	PDFURL     string    `json:"pdfUrl,omitempty"`
	Created    time.Time `json:"created"`
}

// CourseSubscription is the local projection of a provider subscription.
// Rows are never deleted; cancellation is a status.
type CourseSubscription struct {
	ID         string `json:"id" gorm:"primaryKey;size:255"`
	CustomerID string `json:"customerId" gorm:"index;not null"`
	CourseID   uint   `json:"courseId" gorm:"index;not null"`
	StudentID  uint   `json:"studentId" gorm:"index"`

	StudentEmail string `json:"studentEmail"`

	Plan   datatypes.JSONType[billing.SubscriptionPlan] `json:"plan"`
	Status SubscriptionStatus                           `json:"status" gorm:"size:32;index;not null"`

	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
	TrialStart         *time.Time `json:"trialStart,omitempty"`
	TrialEnd           *time.Time `json:"trialEnd,omitempty"`

	// PriceAmount is in minor units of PriceCurrency.
	PriceAmount   int64  `json:"priceAmount"`
	PriceCurrency string `json:"priceCurrency" gorm:"size:3"`

	LatestInvoice *SubscriptionInvoice `json:"latestInvoice,omitempty" gorm:"serializer:json"`
	TrialReminded bool                 `json:"-" gorm:"not null;default:false"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`

	Sessions    []SessionRecord `json:"sessions" gorm:"foreignKey:SubscriptionID"`
	NextSession *SessionRecord  `json:"nextSession,omitempty" gorm:"-"`
}

// SetNextSession picks the earliest scheduled session after now.
func (cs *CourseSubscription) SetNextSession(now time.Time) {
	cs.NextSession = nil
	for i := range cs.Sessions {
		s := &cs.Sessions[i]
		if s.Status != SessionScheduled || !s.ScheduledAt.After(now) {
			continue
		}
		if cs.NextSession == nil || s.ScheduledAt.Before(cs.NextSession.ScheduledAt) {
			cs.NextSession = s
		}
	}
}

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionMissed    SessionStatus = "missed"
	SessionCanceled  SessionStatus = "canceled"
)

type SessionRecord struct {
	ID             string                `json:"id" gorm:"primaryKey;size:36"`
	SubscriptionID string                `json:"subscriptionId" gorm:"index;not null"`
	ScheduledAt    time.Time             `json:"scheduledDate" gorm:"index;not null"`
	CompletedAt    *time.Time            `json:"completedDate,omitempty"`
	DurationHours  float64               `json:"duration"`
	Format         billing.SessionFormat `json:"sessionFormat" gorm:"size:32"`
	Notes          string                `json:"notes,omitempty" gorm:"type:text"`
	Feedback       string                `json:"feedback,omitempty" gorm:"type:text"`
	Status         SessionStatus         `json:"status" gorm:"size:16;not null;default:'scheduled'"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
