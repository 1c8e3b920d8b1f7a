package indicators

import "fmt"

// MACDResult holds the three MACD series values at the latest close.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes the Moving Average Convergence Divergence for the standard
// (fast, slow, signal) EMA periods, e.g. (12, 26, 9). It needs at least
// slow+signal prices.
func MACD(closes []float64, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, fmt.Errorf("MACD periods must be positive, got (%d,%d,%d)", fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("MACD fast period %d must be less than slow period %d", fast, slow)
	}
	if len(closes) < slow+signal {
		return nil, fmt.Errorf("not enough data (%d) to calculate MACD(%d,%d,%d)", len(closes), fast, slow, signal)
	}

	// MACD line = EMA(fast) - EMA(slow), evaluated at each close from the
	// point both EMAs are defined.
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)
	offset := slow - fast
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signal)
	line := macdLine[len(macdLine)-1]
	sig := signalSeries[len(signalSeries)-1]
	return &MACDResult{Line: line, Signal: sig, Histogram: line - sig}, nil
}

// emaSeries returns the EMA values for every index from period-1 onward,
// seeded with the SMA of the first period values.
func emaSeries(values []float64, period int) []float64 {
	multiplier := 2.0 / float64(period+1)

	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)

	out := make([]float64, 0, len(values)-period+1)
	ema := seed
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}
