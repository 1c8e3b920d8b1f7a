package domain

import "time"

// Candle represents a single OHLCV candlestick data point.
type Candle struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Candle interval (e.g., "1m", "1h")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Trading volume
}

// Ticker is a 24h rolling market snapshot for a symbol, used both for the
// advisor prompt and for the realtime fan-out to dashboard clients.
type Ticker struct {
	Symbol             string    `json:"symbol"`
	Price              float64   `json:"price"`
	PriceChange        float64   `json:"priceChange"`
	PriceChangePercent float64   `json:"priceChangePercent"`
	High               float64   `json:"high"`
	Low                float64   `json:"low"`
	Volume             float64   `json:"volume"`
	Timestamp          time.Time `json:"timestamp"`
}
