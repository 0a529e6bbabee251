// Package api serves a read-only HTTP view of the signal engine: the
// watch-list, recent candles, latest indicator readings, the Open Trade
// Set and stored signals.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"supertrend-engine/internal/model"
	"supertrend-engine/internal/pipeline"
)

const (
	defaultCandleCount = 50
	maxCandleCount     = 1000
)

// Store loads stored signals and indicator history (SQLite reader in production).
type Store interface {
	ReadSignals(ctx context.Context, instrument string, since, until time.Time) ([]model.Signal, error)
	ReadIndicators(ctx context.Context, instrument, name string, limit int) ([]model.IndicatorResult, error)
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	reg   *pipeline.Registry
	store Store // optional
}

// NewRouter sets up the API routes under /api/v1. store may be nil, in
// which case the stored-data routes answer 503.
func NewRouter(reg *pipeline.Registry, store Store) *mux.Router {
	s := &Server{reg: reg, store: store}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/instruments", s.handleInstruments).Methods(http.MethodGet)
	v1.HandleFunc("/instruments/{id}/candles", s.handleCandles).Methods(http.MethodGet)
	v1.HandleFunc("/instruments/{id}/indicators", s.handleIndicators).Methods(http.MethodGet)
	v1.HandleFunc("/instruments/{id}/indicators/{name}/history", s.handleIndicatorHistory).Methods(http.MethodGet)
	v1.HandleFunc("/open-trades", s.handleOpenTrades).Methods(http.MethodGet)
	v1.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	return r
}

type instrumentView struct {
	model.Instrument
	Candles   uint64  `json:"candles"`
	Pending   int     `json:"pending_ticks"`
	LastPrice float64 `json:"last_price"`
	InTrade   bool    `json:"in_trade"`
}

type indicatorsView struct {
	Instrument string                  `json:"instrument"`
	Candle     model.Candle            `json:"candle"`
	Slow       string                  `json:"slow"`
	Mid        string                  `json:"mid"`
	Fast       string                  `json:"fast"`
	Values     []model.IndicatorResult `json:"values"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	insts := s.reg.Instruments()
	out := make([]instrumentView, 0, len(insts))
	for _, inst := range insts {
		p, ok := s.reg.Get(inst.ID)
		if !ok {
			continue
		}
		candles, pending := p.Stats()
		out = append(out, instrumentView{
			Instrument: inst,
			Candles:    candles,
			Pending:    pending,
			LastPrice:  p.LastPrice(),
			InTrade:    s.reg.Evaluator().InTrade(inst.ID),
		})
	}
	setResponse(w, http.StatusOK, out)
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}

	n, ok := countParam(w, r)
	if !ok {
		return
	}
	candles := p.Candles(n)
	if candles == nil {
		candles = []model.Candle{}
	}
	setResponse(w, http.StatusOK, candles)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}

	snap, err := p.Latest()
	if err != nil {
		setErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	setResponse(w, http.StatusOK, indicatorsView{
		Instrument: p.Instrument().ID,
		Candle:     snap.Candle,
		Slow:       snap.Slow.String(),
		Mid:        snap.Mid.String(),
		Fast:       snap.Fast.String(),
		Values:     p.Indicators(),
	})
}

// handleIndicatorHistory serves GET /instruments/{id}/indicators/{name}/history?n=N
// from the store, oldest first.
func (s *Server) handleIndicatorHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		setErrorResponse(w, http.StatusServiceUnavailable, "indicator store not configured")
		return
	}
	p, ok := s.pipeline(w, r)
	if !ok {
		return
	}
	n, ok := countParam(w, r)
	if !ok {
		return
	}
	res, err := s.store.ReadIndicators(r.Context(), p.Instrument().ID, mux.Vars(r)["name"], n)
	if err != nil {
		log.Printf("[api] read indicators: %v", err)
		setErrorResponse(w, http.StatusInternalServerError, "failed to read indicators")
		return
	}
	if res == nil {
		res = []model.IndicatorResult{}
	}
	setResponse(w, http.StatusOK, res)
}

func (s *Server) handleOpenTrades(w http.ResponseWriter, r *http.Request) {
	setResponse(w, http.StatusOK, s.reg.Evaluator().OpenTrades())
}

// handleSignals serves GET /signals?instrument=ID&since=RFC3339&until=RFC3339.
// since defaults to 24 hours ago.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		setErrorResponse(w, http.StatusServiceUnavailable, "signal store not configured")
		return
	}

	q := r.URL.Query()
	since := time.Now().Add(-24 * time.Hour)
	var until time.Time
	var err error
	if v := q.Get("since"); v != "" {
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			setErrorResponse(w, http.StatusBadRequest, "since: "+err.Error())
			return
		}
	}
	if v := q.Get("until"); v != "" {
		if until, err = time.Parse(time.RFC3339, v); err != nil {
			setErrorResponse(w, http.StatusBadRequest, "until: "+err.Error())
			return
		}
	}

	sigs, err := s.store.ReadSignals(r.Context(), q.Get("instrument"), since, until)
	if err != nil {
		log.Printf("[api] read signals: %v", err)
		setErrorResponse(w, http.StatusInternalServerError, "failed to read signals")
		return
	}
	if sigs == nil {
		sigs = []model.Signal{}
	}
	setResponse(w, http.StatusOK, sigs)
}

func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	id := mux.Vars(r)["id"]
	p, ok := s.reg.Get(id)
	if !ok {
		setErrorResponse(w, http.StatusNotFound, "unknown instrument "+id)
		return nil, false
	}
	return p, true
}

// countParam parses the optional ?n= query parameter, capped at maxCandleCount.
func countParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n := defaultCandleCount
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			setErrorResponse(w, http.StatusBadRequest, "n must be a positive integer")
			return 0, false
		}
		n = parsed
	}
	if n > maxCandleCount {
		n = maxCandleCount
	}
	return n, true
}

func setResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func setErrorResponse(w http.ResponseWriter, status int, msg string) {
	setResponse(w, status, errorResponse{Error: msg})
}
