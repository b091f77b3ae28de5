package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
)

type StudentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) Get(ctx context.Context, id uint) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).First(&student, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("student", strconv.FormatUint(uint64(id), 10))
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("student", email)
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *StudentRepository) Create(ctx context.Context, student *model.Student) error {
	student.Email = strings.ToLower(student.Email)
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *StudentRepository) SetBillingCustomerID(ctx context.Context, id uint, customerID string) error {
	return r.db.WithContext(ctx).Model(&model.Student{}).
		Where("id = ?", id).
		Update("billing_customer_id", customerID).Error
}
