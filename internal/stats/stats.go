// Package stats computes portfolio statistics over a user's trade history.
// Trades are read-only here; the trade service owns all mutation.
package stats

import (
	"sort"

	"tradedesk/internal/domain"
)

// SymbolBreakdown aggregates closed-trade results for a single symbol.
type SymbolBreakdown struct {
	Symbol    string  `json:"symbol"`
	Trades    int     `json:"trades"`
	NetProfit float64 `json:"netProfit"`
}

// Summary holds portfolio statistics for a set of trades.
type Summary struct {
	TotalTrades      int               `json:"totalTrades"`
	OpenTrades       int               `json:"openTrades"`
	ClosedTrades     int               `json:"closedTrades"`
	WinningTrades    int               `json:"winningTrades"`
	LosingTrades     int               `json:"losingTrades"`
	WinRate          float64           `json:"winRate"`
	NetProfit        float64           `json:"netProfit"`
	AverageWin       float64           `json:"averageWin"`
	AverageLoss      float64           `json:"averageLoss"`
	BestTrade        float64           `json:"bestTrade"`
	WorstTrade       float64           `json:"worstTrade"`
	OpenExposure     float64           `json:"openExposure"`
	SymbolBreakdowns []SymbolBreakdown `json:"symbolBreakdowns"`
}

// Summarize computes a portfolio summary. Win/loss metrics consider only
// closed trades; open trades contribute to the exposure figure.
func Summarize(trades []*domain.Trade) *Summary {
	s := &Summary{}
	perSymbol := make(map[string]*SymbolBreakdown)

	for _, t := range trades {
		s.TotalTrades++
		if t.IsOpen() {
			s.OpenTrades++
			s.OpenExposure += t.Amount
			continue
		}

		s.ClosedTrades++
		s.NetProfit += t.Profit
		if t.Profit > 0 {
			s.WinningTrades++
			s.AverageWin = (s.AverageWin*float64(s.WinningTrades-1) + t.Profit) / float64(s.WinningTrades)
		} else {
			s.LosingTrades++
			s.AverageLoss = (s.AverageLoss*float64(s.LosingTrades-1) + t.Profit) / float64(s.LosingTrades)
		}
		if t.Profit > s.BestTrade {
			s.BestTrade = t.Profit
		}
		if t.Profit < s.WorstTrade {
			s.WorstTrade = t.Profit
		}

		b, ok := perSymbol[t.Symbol]
		if !ok {
			b = &SymbolBreakdown{Symbol: t.Symbol}
			perSymbol[t.Symbol] = b
		}
		b.Trades++
		b.NetProfit += t.Profit
	}

	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.ClosedTrades)
	}

	s.SymbolBreakdowns = make([]SymbolBreakdown, 0, len(perSymbol))
	for _, b := range perSymbol {
		s.SymbolBreakdowns = append(s.SymbolBreakdowns, *b)
	}
	sort.Slice(s.SymbolBreakdowns, func(i, j int) bool {
		return s.SymbolBreakdowns[i].Symbol < s.SymbolBreakdowns[j].Symbol
	})

	return s
}
