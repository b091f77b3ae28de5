package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"livementor_backend/pkg/metrics"
)

// RateTable maps a currency code to its rate relative to BaseCurrency.
type RateTable map[string]decimal.Decimal

// Rate returns the rate for code, falling back to the static table. The
// second value is false when neither table knows the code.
func (t RateTable) Rate(code string) (decimal.Decimal, bool) {
	code = strings.ToUpper(code)
	if r, ok := t[code]; ok && r.IsPositive() {
		return r, true
	}
	if r, ok := staticRates[code]; ok {
		return decimal.RequireFromString(r), true
	}
	return decimal.Zero, false
}

type RateProviderConfig struct {
	URL      string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// RateProvider loads the exchange-rate table on demand: Redis cache first,
// then the remote endpoint, then the bundled static table. It never returns
// an empty table.
type RateProvider struct {
	cfg     RateProviderConfig
	client  *http.Client
	cache   redis.Cmdable
	group   singleflight.Group
	log     *zap.Logger
	metrics *metrics.Collector
}

const rateCacheKey = "currency:rates:" + BaseCurrency

func NewRateProvider(cfg RateProviderConfig, client *http.Client, cache redis.Cmdable, log *zap.Logger, m *metrics.Collector) *RateProvider {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateProvider{cfg: cfg, client: client, cache: cache, log: log, metrics: m}
}

// Table returns the current rate table.
func (p *RateProvider) Table(ctx context.Context) RateTable {
	if p == nil {
		return StaticRates()
	}
	if t, ok := p.cached(ctx); ok {
		p.metrics.RateTableLoad("cache")
		return t
	}

	v, err, _ := p.group.Do(rateCacheKey, func() (interface{}, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		p.log.Warn("exchange rate refresh failed, using static table", zap.Error(err))
		p.metrics.RateTableLoad("static")
		return StaticRates()
	}

	p.metrics.RateTableLoad("remote")
	return v.(RateTable)
}

// Refresh forces a remote fetch and rewrites the cache.
func (p *RateProvider) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do(rateCacheKey, func() (interface{}, error) {
		return p.fetch(ctx)
	})
	return err
}

func (p *RateProvider) cached(ctx context.Context) (RateTable, bool) {
	if p.cache == nil {
		return nil, false
	}
	raw, err := p.cache.Get(ctx, rateCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.log.Debug("rate cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var t RateTable
	if err := json.Unmarshal([]byte(raw), &t); err != nil || len(t) == 0 {
		return nil, false
	}
	return t, true
}

type rateResponse struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

func (p *RateProvider) fetch(ctx context.Context) (RateTable, error) {
	if p.cfg.URL == "" {
		return nil, errors.New("no exchange rate URL configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rate endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("rate endpoint result %q", payload.Result)
	}
	if payload.Base != "" && !strings.EqualFold(payload.Base, BaseCurrency) {
		return nil, fmt.Errorf("rate endpoint base %q, want %s", payload.Base, BaseCurrency)
	}

	t := make(RateTable, len(payload.Rates))
	for code, r := range payload.Rates {
		if r > 0 {
			t[strings.ToUpper(code)] = decimal.NewFromFloat(r)
		}
	}
	if len(t) == 0 {
		return nil, errors.New("rate endpoint returned an empty table")
	}
	t[BaseCurrency] = decimal.NewFromInt(1)

	if p.cache != nil {
		if raw, err := json.Marshal(t); err == nil {
			if err := p.cache.Set(ctx, rateCacheKey, raw, p.cfg.CacheTTL).Err(); err != nil {
				p.log.Debug("rate cache write failed", zap.Error(err))
			}
		}
	}
	return t, nil
}
