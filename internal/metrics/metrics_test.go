package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"supertrend-engine/internal/model"
)

func TestObserveCandle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ObserveCandle(50*time.Microsecond, []model.Signal{
		{Kind: model.SignalTripleSuperTrendBuy},
		{Kind: model.CrossingKind(21, false)},
		{Kind: model.CrossingKind(21, false)},
	})
	m.ObserveCandle(10*time.Microsecond, nil)

	if got := testutil.ToFloat64(m.CandlesTotal); got != 2 {
		t.Errorf("candles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("rsi-crossing-21-down")); got != 2 {
		t.Errorf("crossing signals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("triple-supertrend-buy")); got != 1 {
		t.Errorf("triple buys = %v, want 1", got)
	}
}

func TestObserveSaturation(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	m.ObserveSaturation("ticks", 256, 1024)
	m.ObserveSaturation("empty", 0, 0)

	if got := testutil.ToFloat64(m.ChannelSaturationPct.WithLabelValues("ticks")); got != 25 {
		t.Errorf("saturation = %v, want 25", got)
	}
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()
	h.SQLiteOK = true

	serve := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Code
	}

	if code := serve(); code != http.StatusOK {
		t.Errorf("closed market without feed: got %d, want 200", code)
	}

	h.SetMarketOpen(true)
	if code := serve(); code != http.StatusServiceUnavailable {
		t.Errorf("open market without feed: got %d, want 503", code)
	}

	h.SetFeedConnected(true)
	h.SetRedisEnabled(true)
	if code := serve(); code != http.StatusServiceUnavailable {
		t.Errorf("redis enabled but down: got %d, want 503", code)
	}
}
