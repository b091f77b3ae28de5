package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
)

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) CreatePending(ctx context.Context, p *model.PendingEnrollment) error {
	p.Email = strings.ToLower(p.Email)
	if p.Status == "" {
		p.Status = model.PendingStatus
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *EnrollmentRepository) GetPendingBySession(ctx context.Context, sessionID string) (*model.PendingEnrollment, error) {
	var p model.PendingEnrollment
	err := r.db.WithContext(ctx).Where("checkout_session_id = ?", sessionID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("pending enrollment", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending returns the open pending records of one student for a course,
// oldest first.
func (r *EnrollmentRepository) ListPending(ctx context.Context, courseID uint, email string) ([]model.PendingEnrollment, error) {
	var list []model.PendingEnrollment
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND email = ? AND status = ?", courseID, strings.ToLower(email), model.PendingStatus).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *EnrollmentRepository) DeletePending(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PendingEnrollment{}).Error
}

func (r *EnrollmentRepository) Get(ctx context.Context, id string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("enrollment", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, courseID uint, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND email = ?", courseID, strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *EnrollmentRepository) ListByEmail(ctx context.Context, email string) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(email)).
		Order("enrolled_at DESC").
		Find(&list).Error
	return list, err
}

// Reconcile turns the pending record for sessionID into an Enrollment and
// bumps the course count, all in one transaction. The pending delete must
// hit exactly one row, so a second call for the same session fails with a
// NotFoundError and creates nothing.
func (r *EnrollmentRepository) Reconcile(ctx context.Context, sessionID, paymentIntentID string, enrolledAt time.Time) (*model.Enrollment, error) {
	var enrollment model.Enrollment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending model.PendingEnrollment
		err := tx.Where("checkout_session_id = ?", sessionID).First(&pending).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("pending enrollment", sessionID)
		}
		if err != nil {
			return err
		}

		res := tx.Where("id = ?", pending.ID).Delete(&model.PendingEnrollment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperror.NotFound("pending enrollment", sessionID)
		}

		enrollment = model.Enrollment{
			CourseID:          pending.CourseID,
			StudentName:       pending.StudentName,
			Email:             pending.Email,
			Phone:             pending.Phone,
			CheckoutSessionID: pending.CheckoutSessionID,
			Amount:            pending.Amount,
			Currency:          pending.Currency,
			PaymentIntentID:   paymentIntentID,
			EnrolledAt:        enrolledAt,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			return err
		}

		res = tx.Model(&model.Course{}).
			Where("id = ?", pending.CourseID).
			UpdateColumn("current_enrollments", gorm.Expr("current_enrollments + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperror.NotFound("course", strconv.FormatUint(uint64(pending.CourseID), 10))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) AssignTeacher(ctx context.Context, id, teacher string) (*model.Enrollment, error) {
	res := r.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ?", id).
		Update("assigned_teacher", teacher)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperror.NotFound("enrollment", id)
	}
	return r.Get(ctx, id)
}

// DeletePendingBefore removes pending records created before cutoff and
// returns how many went away.
func (r *EnrollmentRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PendingStatus, cutoff).
		Delete(&model.PendingEnrollment{})
	return res.RowsAffected, res.Error
}
