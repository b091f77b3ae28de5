package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const publicIP = "102.89.1.10"

var promoEnd = time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)

func newTestService(t *testing.T, geo []GeoProvider, now time.Time) *Service {
	t.Helper()
	svc := NewService(Config{
		ZeroDecimal:     []string{"NGN", "JPY"},
		GeoTimeout:      500 * time.Millisecond,
		PromoMultiplier: 0.5,
		PromoEndsAt:     promoEnd,
	}, NewMemoryPreferenceStore(), geo, nil, nil, nil)
	return svc.WithClock(func() time.Time { return now })
}

func countingProvider(name string, hits *int32, country string, err error) GeoProvider {
	return GeoProvider{
		Name: name,
		Lookup: func(ctx context.Context, ip string) (string, error) {
			atomic.AddInt32(hits, 1)
			return country, err
		},
	}
}

func TestDetect_FallbackChainStopsAtFirstSuccess(t *testing.T) {
	var first, second, third int32
	svc := newTestService(t, []GeoProvider{
		countingProvider("first", &first, "", assert.AnError),
		countingProvider("second", &second, "ng", nil),
		countingProvider("third", &third, "US", nil),
	}, time.Now())

	sel := svc.Detect(context.Background(), "visitor-1", publicIP)

	assert.Equal(t, "NGN", sel.Selected)
	assert.Equal(t, "NGN", sel.Local)
	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 1, second)
	assert.EqualValues(t, 0, third)
}

func TestDetect_AllProvidersFailDefaultsToBase(t *testing.T) {
	var hits int32
	svc := newTestService(t, []GeoProvider{
		countingProvider("a", &hits, "", assert.AnError),
		countingProvider("b", &hits, "", nil),
	}, time.Now())

	sel := svc.Detect(context.Background(), "visitor-2", publicIP)

	assert.Equal(t, BaseCurrency, sel.Selected)
	assert.Empty(t, sel.Local)
	assert.EqualValues(t, 2, hits)
}

func TestDetect_PrivateIPSkipsLookups(t *testing.T) {
	var hits int32
	svc := newTestService(t, []GeoProvider{countingProvider("a", &hits, "NG", nil)}, time.Now())

	sel := svc.Detect(context.Background(), "", "192.168.1.20")

	assert.Equal(t, BaseCurrency, sel.Selected)
	assert.EqualValues(t, 0, hits)
}

func TestDetect_StoredPreferenceWins(t *testing.T) {
	var hits int32
	svc := newTestService(t, []GeoProvider{countingProvider("a", &hits, "NG", nil)}, time.Now())
	ctx := context.Background()

	first := svc.Detect(ctx, "visitor-3", publicIP)
	require.Equal(t, "NGN", first.Selected)

	require.True(t, svc.SetCurrency(ctx, "visitor-3", "gbp"))
	again := svc.Detect(ctx, "visitor-3", publicIP)

	assert.Equal(t, "GBP", again.Selected)
	assert.Equal(t, "NGN", again.Local, "local currency survives an explicit choice")
	assert.EqualValues(t, 1, hits, "geo lookup only happens once per visitor")
}

func TestDetect_SlowProviderIsBounded(t *testing.T) {
	slow := GeoProvider{
		Name: "slow",
		Lookup: func(ctx context.Context, ip string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	var hits int32
	svc := newTestService(t, []GeoProvider{slow, countingProvider("fast", &hits, "KE", nil)}, time.Now())

	start := time.Now()
	sel := svc.Detect(context.Background(), "", publicIP)

	assert.Equal(t, "KES", sel.Selected)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSetCurrency_UnsupportedIsIgnored(t *testing.T) {
	svc := newTestService(t, nil, time.Now())
	ctx := context.Background()

	assert.False(t, svc.SetCurrency(ctx, "visitor-4", "XYZ"))
	pref, err := svc.prefs.Get(ctx, "visitor-4")
	require.NoError(t, err)
	assert.Empty(t, pref.Selected)
}

func TestDefaultGeoProviders_HTTP(t *testing.T) {
	var ipapiHits, ipapiComHits int32
	ipapi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ipapiHits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ipapi.Close()
	ipapiCom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ipapiComHits, 1)
		assert.Equal(t, "/json/"+publicIP, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"GH"}`))
	}))
	defer ipapiCom.Close()

	providers := DefaultGeoProviders(ipapi.Client(), GeoURLs{IPAPI: ipapi.URL, IPAPICom: ipapiCom.URL})
	require.Len(t, providers, 2)

	svc := newTestService(t, providers, time.Now())
	sel := svc.Detect(context.Background(), "", publicIP)

	assert.Equal(t, "GHS", sel.Selected)
	assert.EqualValues(t, 1, ipapiHits)
	assert.EqualValues(t, 1, ipapiComHits)
}

func TestRedisPreferenceStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisPreferenceStore(client)
	ctx := context.Background()

	empty, err := store.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, Preference{}, empty)

	require.NoError(t, store.Save(ctx, "v1", Preference{Selected: "EUR", Local: "NGN"}))
	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, Preference{Selected: "EUR", Local: "NGN"}, got)
	assert.True(t, mr.TTL("currency:pref:v1") > 0)
}

func TestRateProvider_RemoteThenCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"USD":1,"NGN":1600,"EUR":0.9}}`))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	p := NewRateProvider(RateProviderConfig{URL: srv.URL, CacheTTL: time.Minute}, srv.Client(), client, nil, nil)
	ctx := context.Background()

	first := p.Table(ctx)
	second := p.Table(ctx)

	assert.Equal(t, "1600", first["NGN"].String())
	assert.Equal(t, "1600", second["NGN"].String())
	assert.EqualValues(t, 1, hits)
}

func TestRateProvider_FailureFallsBackToStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewRateProvider(RateProviderConfig{URL: srv.URL}, srv.Client(), nil, nil, nil)
	table := p.Table(context.Background())

	require.NotEmpty(t, table)
	assert.Equal(t, StaticRates()["NGN"].String(), table["NGN"].String())
}

func TestConvertPrice_UnknownRateUsesStaticTable(t *testing.T) {
	sel := Selection{Selected: "USD", Rates: RateTable{"USD": decimal.NewFromInt(1)}}
	got := sel.ConvertPrice(decimal.NewFromInt(10), "EUR")
	assert.Equal(t, "9.2", got.String())
}

func TestFormatPrice_ZeroDecimalAndGrouping(t *testing.T) {
	svc := newTestService(t, nil, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	sel := svc.Selection(context.Background(), "NGN", "NGN")

	assert.Equal(t, "₦496,000", sel.FormatPrice(decimal.NewFromInt(320), FormatOptions{}))
	assert.Equal(t, "$1,234.50", sel.FormatAmount(decimal.RequireFromString("1234.5"), "USD"))
}

func TestFormatPrice_DiscountGate(t *testing.T) {
	amount := decimal.NewFromInt(100)
	ctx := context.Background()

	before := newTestService(t, nil, promoEnd.Add(-time.Second)).Selection(ctx, "NGN", "NGN")
	at := newTestService(t, nil, promoEnd).Selection(ctx, "NGN", "NGN")
	after := newTestService(t, nil, promoEnd.Add(time.Hour)).Selection(ctx, "NGN", "NGN")

	full := before.ConvertPrice(amount, "NGN")

	assert.True(t, before.IsLaunchSpecialActive())
	assert.True(t, before.PriceValue(amount, FormatOptions{}).Equal(full.Mul(decimal.RequireFromString("0.5"))))
	assert.True(t, before.PriceValue(amount, FormatOptions{NoDiscount: true}).Equal(full))

	assert.False(t, at.IsLaunchSpecialActive())
	assert.True(t, at.PriceValue(amount, FormatOptions{}).Equal(full))
	assert.True(t, after.PriceValue(amount, FormatOptions{}).Equal(full))

	// Non-local currency never gets the discount, even mid-promotion.
	usd := before.PriceValue(amount, FormatOptions{Currency: "USD"})
	assert.True(t, usd.Equal(amount))

	// Unknown local currency never gets the discount.
	unknown := newTestService(t, nil, promoEnd.Add(-time.Hour)).Selection(ctx, "NGN", "")
	assert.False(t, unknown.IsLocalCurrency())
	assert.True(t, unknown.PriceValue(amount, FormatOptions{}).Equal(full))
}

func TestFormatPrice_ConvertPathIndependence(t *testing.T) {
	svc := newTestService(t, nil, promoEnd.Add(time.Hour))
	sel := svc.Selection(context.Background(), "USD", "")

	for _, code := range []string{"USD", "EUR", "GBP", "NGN", "JPY", "KES"} {
		for _, x := range []string{"0.99", "40", "192", "320", "1234.56"} {
			amount := decimal.RequireFromString(x)
			direct := sel.FormatPrice(amount, FormatOptions{Currency: code, NoDiscount: true})
			viaConvert := sel.FormatAmount(sel.ConvertPrice(amount, code), code)
			assert.Equal(t, direct, viaConvert, "%s %s", x, code)
		}
	}
}
