package model

// Instrument is one entry of the watch-list.
type Instrument struct {
	ID       string `json:"id" yaml:"id"`             // feed instrument token
	Symbol   string `json:"symbol" yaml:"symbol"`     // trading symbol, e.g. BANKNIFTY24JUN48000CE
	Exchange string `json:"exchange" yaml:"exchange"` // NFO, NSE, ...
}

// Name returns the symbol, falling back to the instrument ID.
func (i *Instrument) Name() string {
	if i.Symbol != "" {
		return i.Symbol
	}
	return i.ID
}
