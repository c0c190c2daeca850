package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/segmentio/encoding/json"

	"exarena.com/internal/scoring"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// writeLeaderboard 每行 "{rank}. {trader}: P&L = {pnl}"，P&L 保留两位小数
func writeLeaderboard(w io.Writer, board []scoring.Standing) error {
	for _, s := range board {
		pnl := s.PnL.StringFixed(2)
		switch {
		case s.PnL.IsPositive():
			pnl = green(pnl)
		case s.PnL.IsNegative():
			pnl = red(pnl)
		}
		if _, err := fmt.Fprintf(w, "%d. %s: P&L = %s\n", s.Rank, s.TraderID, pnl); err != nil {
			return err
		}
	}
	return nil
}

type standingJSON struct {
	Rank     int    `json:"rank"`
	TraderID string `json:"trader_id"`
	PnL      string `json:"pnl"`
	Trades   int    `json:"trades"`
}

func writeLeaderboardJSON(w io.Writer, board []scoring.Standing) error {
	out := make([]standingJSON, 0, len(board))
	for _, s := range board {
		out = append(out, standingJSON{Rank: s.Rank, TraderID: s.TraderID, PnL: s.PnL.StringFixed(2), Trades: s.Trades})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
