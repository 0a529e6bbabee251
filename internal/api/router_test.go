package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supertrend-engine/internal/model"
	"supertrend-engine/internal/pipeline"
	"supertrend-engine/internal/strategy"
)

var (
	inst = model.Instrument{ID: "260105", Symbol: "BANKNIFTY", Exchange: "NSE"}
	t0   = time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
)

type fakeStore struct {
	got  string
	sigs []model.Signal
	inds []model.IndicatorResult
}

func (f *fakeStore) ReadSignals(_ context.Context, instrument string, _, _ time.Time) ([]model.Signal, error) {
	f.got = instrument
	return f.sigs, nil
}

func (f *fakeStore) ReadIndicators(_ context.Context, instrument, name string, limit int) ([]model.IndicatorResult, error) {
	f.got = instrument + "/" + name
	if limit < len(f.inds) {
		return f.inds[len(f.inds)-limit:], nil
	}
	return f.inds, nil
}

func newTestRegistry(t *testing.T, seed int) *pipeline.Registry {
	t.Helper()
	reg, err := pipeline.NewRegistry(pipeline.DefaultConfig(), strategy.NewEvaluator(strategy.DefaultOptions()), pipeline.Hooks{})
	require.NoError(t, err)
	p := reg.Add(inst)

	candles := make([]model.Candle, seed)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = model.Candle{
			Instrument: inst.ID,
			TS:         t0.Add(time.Duration(i) * time.Minute),
			Open:       price, High: price + 1, Low: price - 1, Close: price + 0.5,
			Ticks: 210,
		}
	}
	_, err = p.Seed(candles)
	require.NoError(t, err)
	return reg
}

func get(t *testing.T, h http.Handler, path string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestInstruments(t *testing.T) {
	h := NewRouter(newTestRegistry(t, 5), nil)

	var got []instrumentView
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/instruments", &got))
	require.Len(t, got, 1)
	assert.Equal(t, inst.ID, got[0].ID)
	assert.Equal(t, uint64(5), got[0].Candles)
	assert.Equal(t, 104.5, got[0].LastPrice)
}

func TestCandles(t *testing.T) {
	h := NewRouter(newTestRegistry(t, 10), nil)

	var got []model.Candle
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/instruments/"+inst.ID+"/candles?n=3", &got))
	require.Len(t, got, 3)
	assert.Equal(t, 107.5, got[0].Close)
	assert.Equal(t, 109.5, got[2].Close)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/instruments/"+inst.ID+"/candles?n=x", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/instruments/nope/candles", nil))
}

func TestIndicators(t *testing.T) {
	h := NewRouter(newTestRegistry(t, 0), nil)
	assert.Equal(t, http.StatusConflict, get(t, h, "/api/v1/instruments/"+inst.ID+"/indicators", nil))

	h = NewRouter(newTestRegistry(t, 60), nil)
	var got indicatorsView
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/instruments/"+inst.ID+"/indicators", &got))
	assert.Equal(t, "up", got.Slow)
	assert.Equal(t, "up", got.Fast)
	assert.NotEmpty(t, got.Values)
	for _, v := range got.Values {
		assert.True(t, v.Ready, v.Name)
	}
}

func TestOpenTrades(t *testing.T) {
	reg := newTestRegistry(t, 0)
	reg.Evaluator().Restore([]strategy.OpenTrade{{Instrument: inst.ID, Symbol: inst.Symbol, Since: t0, EntryPrice: 100}})
	h := NewRouter(reg, nil)

	var got []strategy.OpenTrade
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/open-trades", &got))
	require.Len(t, got, 1)
	assert.Equal(t, inst.ID, got[0].Instrument)
}

func TestSignals(t *testing.T) {
	h := NewRouter(newTestRegistry(t, 0), nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/signals", nil))

	store := &fakeStore{sigs: []model.Signal{model.NewSignal(inst, model.SignalRSI21Sell, t0, 100, "")}}
	h = NewRouter(newTestRegistry(t, 0), store)

	var got []model.Signal
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/signals?instrument="+inst.ID, &got))
	require.Len(t, got, 1)
	assert.Equal(t, inst.ID, store.got)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/signals?since=yesterday", nil))
}

func TestIndicatorHistory(t *testing.T) {
	h := NewRouter(newTestRegistry(t, 0), nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/instruments/"+inst.ID+"/indicators/RSI_13/history", nil))

	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.inds = append(store.inds, model.IndicatorResult{Name: "RSI_13", Instrument: inst.ID, Value: float64(40 + i), TS: t0.Add(time.Duration(i) * time.Minute), Ready: true})
	}
	h = NewRouter(newTestRegistry(t, 0), store)

	var got []model.IndicatorResult
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/instruments/"+inst.ID+"/indicators/RSI_13/history?n=2", &got))
	require.Len(t, got, 2)
	assert.Equal(t, 44.0, got[1].Value)
	assert.Equal(t, inst.ID+"/RSI_13", store.got)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/instruments/nope/indicators/RSI_13/history", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/instruments/"+inst.ID+"/indicators/RSI_13/history?n=0", nil))
}
