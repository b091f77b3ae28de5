package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func withSessions(db *gorm.DB) *gorm.DB {
	return db.Preload("Sessions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("scheduled_at ASC")
	})
}

// Get returns a subscription with its session history, oldest first.
func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*model.CourseSubscription, error) {
	var sub model.CourseSubscription
	err := withSessions(r.db.WithContext(ctx)).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("subscription", id)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.CourseSubscription, error) {
	var subs []model.CourseSubscription
	err := withSessions(r.db.WithContext(ctx)).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.CourseSubscription, error) {
	var subs []model.CourseSubscription
	err := withSessions(r.db.WithContext(ctx)).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// Save inserts or updates the subscription row. Sessions are written
// through SessionRepository only.
func (r *SubscriptionRepository) Save(ctx context.Context, sub *model.CourseSubscription) error {
	return r.db.WithContext(ctx).Omit("Sessions").Save(sub).Error
}

// TrialsEndingBetween lists trialing subscriptions whose trial ends in
// [from, to) and that have not been reminded yet.
func (r *SubscriptionRepository) TrialsEndingBetween(ctx context.Context, from, to time.Time) ([]model.CourseSubscription, error) {
	var subs []model.CourseSubscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND trial_reminded = ? AND trial_end >= ? AND trial_end < ?",
			model.StatusTrialing, false, from, to).
		Order("trial_end ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) MarkTrialReminded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.CourseSubscription{}).
		Where("id = ?", id).
		Update("trial_reminded", true).Error
}

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SessionRepository) Create(ctx context.Context, rec *model.SessionRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *SessionRepository) Save(ctx context.Context, rec *model.SessionRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// CountBetween counts non-canceled sessions of a subscription scheduled in
// [from, to), skipping excludeID when set.
func (r *SessionRepository) CountBetween(ctx context.Context, subscriptionID string, from, to time.Time, excludeID string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.SessionRecord{}).
		Where("subscription_id = ? AND status <> ? AND scheduled_at >= ? AND scheduled_at < ?",
			subscriptionID, model.SessionCanceled, from, to)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	err := q.Count(&count).Error
	return count, err
}
