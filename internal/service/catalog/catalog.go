// Package catalog keeps exactly one provider Product per course and one
// Price per schedule variant. Objects are found by deterministic keys, so
// a retry after a partial failure picks up whatever already exists.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/logger"
	"livementor_backend/pkg/metrics"
	"livementor_backend/pkg/payment"
)

// ErrPriceConflict means a price already exists under the lookup key but
// with different terms. Existing prices are never mutated.
var ErrPriceConflict = errors.New("catalog: price exists with different terms")

// Provider is the slice of payment.Provider the catalog needs.
type Provider interface {
	GetProduct(ctx context.Context, id string) (*payment.Product, error)
	CreateProduct(ctx context.Context, in payment.ProductInput) (*payment.Product, error)
	FindPriceByLookupKey(ctx context.Context, lookupKey string) (*payment.Price, error)
	CreatePrice(ctx context.Context, in payment.PriceInput) (*payment.Price, error)
}

type Service struct {
	provider Provider
	log      *zap.Logger
	metrics  *metrics.Collector
}

func NewService(provider Provider, log *zap.Logger, m *metrics.Collector) *Service {
	return &Service{provider: provider, log: logger.OrNop(log), metrics: m}
}

func ProductKey(courseID uint) string {
	return "course_" + strconv.FormatUint(uint64(courseID), 10)
}

// PriceKey identifies a schedule variant: format, sessions x minutes, then
// the currency and amount, so a changed amount maps to a new price.
func PriceKey(courseID uint, custom billing.SessionCustomization, calc billing.MonthlyBillingCalculation) string {
	minutes := int(math.Round(custom.HoursPerSession * 60))
	format := strings.ReplaceAll(string(custom.SessionFormat), "-", "_")
	return fmt.Sprintf("%s_%s_%dx%dm_%s_%d",
		ProductKey(courseID), format, custom.SessionsPerWeek, minutes,
		strings.ToLower(calc.Currency), calc.MonthlyTotalMinor())
}

// EnsureProduct returns the course's product, creating it on first use.
func (s *Service) EnsureProduct(ctx context.Context, course *model.Course, metadata map[string]string) (*payment.Product, error) {
	key := ProductKey(course.ID)

	product, err := s.provider.GetProduct(ctx, key)
	if err == nil {
		s.metrics.CatalogObject("product", "reused")
		return product, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, err
	}

	md := map[string]string{"course_id": strconv.FormatUint(uint64(course.ID), 10), "course_slug": course.Slug}
	for k, v := range metadata {
		md[k] = v
	}
	product, err = s.provider.CreateProduct(ctx, payment.ProductInput{
		ID:          key,
		Name:        course.Title,
		Description: course.Description,
		Metadata:    md,
	})
	switch {
	case err == nil:
		s.metrics.CatalogObject("product", "created")
		s.log.Info("catalog product created", zap.String("product", key))
		return product, nil
	case errors.Is(err, payment.ErrAlreadyExists):
		// Created concurrently by another request.
		s.metrics.CatalogObject("product", "reused")
		return s.provider.GetProduct(ctx, key)
	default:
		return nil, err
	}
}

// EnsurePrice returns the monthly price for key, creating it on first use.
func (s *Service) EnsurePrice(ctx context.Context, product *payment.Product, key string, calc billing.MonthlyBillingCalculation, metadata map[string]string) (*payment.Price, error) {
	amount := calc.MonthlyTotalMinor()

	price, err := s.provider.FindPriceByLookupKey(ctx, key)
	if err == nil {
		if err := checkTerms(price, product.ID, amount, calc.Currency); err != nil {
			return nil, err
		}
		s.metrics.CatalogObject("price", "reused")
		return price, nil
	}
	if !errors.Is(err, payment.ErrNotFound) {
		return nil, err
	}

	price, err = s.provider.CreatePrice(ctx, payment.PriceInput{
		ProductID:  product.ID,
		LookupKey:  key,
		Currency:   calc.Currency,
		UnitAmount: amount,
		Interval:   billing.IntervalMonth,
		Nickname:   calc.Breakdown.Total,
		Metadata:   metadata,
	})
	if errors.Is(err, payment.ErrAlreadyExists) {
		s.metrics.CatalogObject("price", "reused")
		return s.provider.FindPriceByLookupKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.CatalogObject("price", "created")
	s.log.Info("catalog price created", zap.String("price", price.ID), zap.String("lookup_key", key))
	return price, nil
}

func checkTerms(price *payment.Price, productID string, amount int64, currency string) error {
	if price.UnitAmount != amount || !strings.EqualFold(price.Currency, currency) ||
		(price.ProductID != "" && price.ProductID != productID) {
		return fmt.Errorf("%w: %s has %d %s on %s, want %d %s on %s", ErrPriceConflict,
			price.LookupKey, price.UnitAmount, price.Currency, price.ProductID,
			amount, strings.ToUpper(currency), productID)
	}
	return nil
}
