// Command report renders a user's trade ledger as a console table and
// optionally exports it to an Excel workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"tradedesk/internal/adapters/logger"
	"tradedesk/internal/adapters/sqlite"
	"tradedesk/internal/domain"
	"tradedesk/internal/stats"
)

func main() {
	dbPath := flag.String("db", "./data/tradedesk.db", "Path to the SQLite database")
	userID := flag.String("user", "", "User ID to report on (required)")
	status := flag.String("status", "", "Optional status filter (OPEN or CLOSED)")
	limit := flag.Int("limit", 0, "Maximum number of trades (0 = all)")
	xlsxPath := flag.String("xlsx", "", "Optional path to write an Excel export")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: report -user <userID> [-db path] [-status OPEN|CLOSED] [-limit n] [-xlsx out.xlsx]")
		os.Exit(2)
	}

	log := logger.NewStdLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trades, err := repo.FindByUser(ctx, *userID, domain.TradeStatus(*status), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Printf("no trades found for user %s\n", *userID)
		return
	}

	renderTable(trades)
	renderSummary(stats.Summarize(trades))

	if *xlsxPath != "" {
		if err := writeWorkbook(*xlsxPath, trades); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write Excel export: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *xlsxPath)
	}
}

func renderTable(trades []*domain.Trade) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Amount", "Entry", "Closed", "Profit", "Profit %", "Status", "Reason", "Opened"})

	for _, trade := range trades {
		closed := "-"
		if !trade.IsOpen() {
			closed = fmt.Sprintf("%.2f", trade.ClosedPrice)
		}
		t.AppendRow(table.Row{
			shortID(trade.ID),
			trade.Symbol,
			trade.Type,
			fmt.Sprintf("%.2f", trade.Amount),
			fmt.Sprintf("%.2f", trade.EntryPrice),
			closed,
			colorProfit(trade),
			fmt.Sprintf("%.2f%%", trade.ProfitPercent),
			trade.Status,
			string(trade.CloseReason),
			trade.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}

func renderSummary(s *stats.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Total trades", s.TotalTrades},
		{"Open / Closed", fmt.Sprintf("%d / %d", s.OpenTrades, s.ClosedTrades)},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate*100)},
		{"Net profit", fmt.Sprintf("%.2f", s.NetProfit)},
		{"Best / Worst", fmt.Sprintf("%.2f / %.2f", s.BestTrade, s.WorstTrade)},
		{"Open exposure", fmt.Sprintf("%.2f", s.OpenExposure)},
	})
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func colorProfit(trade *domain.Trade) string {
	if trade.IsOpen() {
		return "-"
	}
	s := fmt.Sprintf("%.2f", trade.Profit)
	if trade.Profit >= 0 {
		return text.FgGreen.Sprint(s)
	}
	return text.FgRed.Sprint(s)
}

func writeWorkbook(path string, trades []*domain.Trade) error {
	const sheet = "Trades"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := []interface{}{"ID", "Symbol", "Side", "Amount", "Entry Price", "Target", "Stop", "Closed Price", "Profit", "Profit %", "Status", "Close Reason", "Opened At", "Closed At"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, trade := range trades {
		closedAt := ""
		if !trade.ClosedAt.IsZero() {
			closedAt = trade.ClosedAt.Format(time.RFC3339)
		}
		row := []interface{}{
			trade.ID,
			trade.Symbol,
			string(trade.Type),
			trade.Amount,
			trade.EntryPrice,
			trade.TargetPrice,
			trade.StopLossPrice,
			trade.ClosedPrice,
			trade.Profit,
			trade.ProfitPercent,
			string(trade.Status),
			string(trade.CloseReason),
			trade.CreatedAt.Format(time.RFC3339),
			closedAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}
