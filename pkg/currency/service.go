package currency

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"livementor_backend/pkg/metrics"
)

type Config struct {
	// ZeroDecimal lists currencies displayed without decimals.
	ZeroDecimal []string
	// GeoTimeout bounds each geo-IP provider call.
	GeoTimeout time.Duration
	// PromoMultiplier is applied to local-currency prices while the launch
	// special runs, e.g. 0.5 for half price. Values outside (0,1) disable it.
	PromoMultiplier float64
	PromoEndsAt     time.Time
}

// Service detects, remembers and applies a visitor's currency. It holds no
// per-visitor state; every pricing call goes through a Selection.
type Service struct {
	cfg         Config
	prefs       PreferenceStore
	geo         []GeoProvider
	rates       *RateProvider
	zeroDecimal map[string]bool
	log         *zap.Logger
	metrics     *metrics.Collector
	now         func() time.Time
}

func NewService(cfg Config, prefs PreferenceStore, geo []GeoProvider, rates *RateProvider, log *zap.Logger, m *metrics.Collector) *Service {
	if prefs == nil {
		prefs = NewMemoryPreferenceStore()
	}
	if cfg.GeoTimeout <= 0 {
		cfg.GeoTimeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	zd := make(map[string]bool, len(cfg.ZeroDecimal))
	for _, c := range cfg.ZeroDecimal {
		zd[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &Service{
		cfg:         cfg,
		prefs:       prefs,
		geo:         geo,
		rates:       rates,
		zeroDecimal: zd,
		log:         log,
		metrics:     m,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Detect resolves the visitor's currency: stored preference first, then the
// geo-IP chain, then the base currency. It never fails.
func (s *Service) Detect(ctx context.Context, visitorID, clientIP string) Selection {
	var pref Preference
	if visitorID != "" {
		p, err := s.prefs.Get(ctx, visitorID)
		if err != nil {
			s.log.Warn("currency preference lookup failed", zap.String("visitor", visitorID), zap.Error(err))
		} else {
			pref = p
		}
	}
	if IsSupported(pref.Selected) {
		return s.Selection(ctx, pref.Selected, pref.Local)
	}

	local := ""
	if country, ok := s.locateCountry(ctx, clientIP); ok {
		if code, known := ForCountry(country); known {
			local = code
		}
	}

	selected := local
	if selected == "" {
		selected = BaseCurrency
	}
	if visitorID != "" {
		if err := s.prefs.Save(ctx, visitorID, Preference{Selected: selected, Local: local}); err != nil {
			s.log.Warn("currency preference save failed", zap.String("visitor", visitorID), zap.Error(err))
		}
	}
	return s.Selection(ctx, selected, local)
}

// SetCurrency stores an explicit choice. Unsupported codes are ignored and
// reported as false.
func (s *Service) SetCurrency(ctx context.Context, visitorID, code string) bool {
	c, ok := Lookup(code)
	if !ok || visitorID == "" {
		return false
	}
	pref, err := s.prefs.Get(ctx, visitorID)
	if err != nil {
		s.log.Warn("currency preference lookup failed", zap.String("visitor", visitorID), zap.Error(err))
	}
	pref.Selected = c.Code
	if err := s.prefs.Save(ctx, visitorID, pref); err != nil {
		s.log.Warn("currency preference save failed", zap.String("visitor", visitorID), zap.Error(err))
	}
	return true
}

// Selection builds the pricing context for an already known choice.
func (s *Service) Selection(ctx context.Context, selected, local string) Selection {
	if !IsSupported(selected) {
		selected = BaseCurrency
	}
	return Selection{
		Selected:    strings.ToUpper(selected),
		Local:       strings.ToUpper(local),
		Rates:       s.rates.Table(ctx),
		Now:         s.now(),
		PromoEndsAt: s.cfg.PromoEndsAt,
		promo:       promoMultiplier(s.cfg.PromoMultiplier),
		zeroDecimal: s.zeroDecimal,
	}
}

// ConvertPrice converts a base-currency amount using the current table.
func (s *Service) ConvertPrice(ctx context.Context, amount decimal.Decimal, target string) decimal.Decimal {
	return convert(s.rates.Table(ctx), amount, target)
}

// RefreshRates is used by the scheduled pre-warm job.
func (s *Service) RefreshRates(ctx context.Context) error {
	if s.rates == nil {
		return nil
	}
	return s.rates.Refresh(ctx)
}

// locateCountry walks the provider chain sequentially and stops at the
// first usable answer. Each call gets its own timeout.
func (s *Service) locateCountry(ctx context.Context, clientIP string) (string, bool) {
	if !isPublicIP(clientIP) {
		return "", false
	}
	for _, p := range s.geo {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GeoTimeout)
		country, err := p.Lookup(callCtx, clientIP)
		cancel()

		if err == nil && strings.TrimSpace(country) == "" {
			err = errNoCountry
		}
		if err != nil {
			s.metrics.GeoIPLookup(p.Name, "error")
			s.log.Debug("geo-ip provider failed", zap.String("provider", p.Name), zap.Error(err))
			continue
		}
		s.metrics.GeoIPLookup(p.Name, "ok")
		return strings.ToUpper(strings.TrimSpace(country)), true
	}
	return "", false
}

func promoMultiplier(m float64) decimal.Decimal {
	if m <= 0 || m >= 1 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(m)
}
