package main

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"supertrend-engine/internal/model"
)

type simInstrument struct {
	ID    string
	Price float64
	Day   model.DayOHLC
}

type simulator struct {
	rng         *rand.Rand
	instruments []simInstrument
}

func newSimulator(instruments []simInstrument, seed int64) *simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	for i := range instruments {
		p := instruments[i].Price
		instruments[i].Day = model.DayOHLC{Open: p, High: p, Low: p, Close: p}
	}
	return &simulator{rng: rand.New(rand.NewSource(seed)), instruments: instruments}
}

// next advances every instrument by one tick: a ±0.1% random walk rounded
// to the 0.05 tick size, with the running day OHLC updated.
func (s *simulator) next(now time.Time) []model.Tick {
	out := make([]model.Tick, 0, len(s.instruments))
	for i := range s.instruments {
		in := &s.instruments[i]
		pct := (s.rng.Float64()*0.2 - 0.1) / 100.0
		in.Price = math.Max(0.05, math.Round(in.Price*(1+pct)*20)/20)

		in.Day.High = math.Max(in.Day.High, in.Price)
		in.Day.Low = math.Min(in.Day.Low, in.Price)
		in.Day.Close = in.Price

		out = append(out, model.Tick{
			Instrument: in.ID,
			TS:         now,
			LastPrice:  in.Price,
			LastQty:    int64(s.rng.Intn(100) + 1),
			Day:        in.Day,
		})
	}
	return out
}

func runGenerator(h *hub, sim *simulator, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for now := range ticker.C {
		for _, t := range sim.next(now.UTC()) {
			h.broadcast(t)
		}
	}
}

// parseInstruments parses "ID[:START_PRICE],..." entries.
func parseInstruments(s string) ([]simInstrument, error) {
	var out []simInstrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, priceStr, hasPrice := strings.Cut(part, ":")
		price := 1000.0
		if hasPrice {
			p, err := strconv.ParseFloat(priceStr, 64)
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("invalid start price in %q", part)
			}
			price = p
		}
		out = append(out, simInstrument{ID: id, Price: price})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no instruments")
	}
	return out, nil
}
