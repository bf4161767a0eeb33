package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bn-rebalance-bot/internal/app"
	"bn-rebalance-bot/internal/config"
	"bn-rebalance-bot/internal/ladder"
	"bn-rebalance-bot/internal/logging"
	"bn-rebalance-bot/internal/rebalance"
)

const defaultVerifyEnvFile = ".env"

// report is the dry-run view of one asset: what the bot would do right now
// with the current price and balances. Nothing is placed or redeemed.
type report struct {
	Symbol      string          `json:"symbol"`
	MarketPrice string          `json:"market_price,omitempty"`
	Action      string          `json:"action"`
	Funds       string          `json:"funds,omitempty"`
	Redeemed    bool            `json:"would_redeem,omitempty"`
	PositionID  string          `json:"position_id,omitempty"`
	Slices      []ladder.Intent `json:"slices,omitempty"`
	Skips       []ladder.Skip   `json:"skips,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	only := flag.String("asset", "", "verify a single configured asset")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	var policies []rebalance.AssetPolicy
	for _, p := range cfg.Policies() {
		if *only == "" || strings.EqualFold(*only, p.Asset) {
			policies = append(policies, p)
		}
	}
	if len(policies) == 0 {
		fatal(errors.New("no matching asset in config"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	evals := app.DryRun(ctx, cfg, policies, log)
	reports := make([]report, 0, len(evals))
	for _, ev := range evals {
		reports = append(reports, toReport(ev))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		fatal(err)
	}
}

func toReport(ev app.Evaluation) report {
	out := ev.Outcome
	r := report{
		Symbol:     out.Symbol,
		Action:     string(out.Action),
		Redeemed:   out.Funds.Redeemed,
		PositionID: out.Funds.PositionID,
		Slices:     out.Intents,
		Skips:      out.Skips,
	}
	if !out.MarketPrice.IsZero() {
		r.MarketPrice = out.MarketPrice.String()
	}
	if out.Funds.Asset != "" {
		r.Funds = out.Funds.Amount.String() + " " + out.Funds.Asset
	}
	if ev.Err != nil {
		r.ErrorKind = rebalance.KindOf(ev.Err).String()
		r.Error = ev.Err.Error()
	}
	return r
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
