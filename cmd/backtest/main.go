package main

import (
	"context"
	"os"

	"github.com/repque/intraday/internal/config"
	"github.com/repque/intraday/internal/engine"
	"github.com/repque/intraday/internal/execution"
	"github.com/repque/intraday/internal/feed"
	"github.com/repque/intraday/internal/portfolio"
	"github.com/repque/intraday/internal/report"
	"github.com/repque/intraday/internal/rules"
	"github.com/repque/intraday/internal/strategy"
	"github.com/repque/intraday/internal/util"
)

func main() {
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	log := util.NewConsoleLogger("info")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewConsoleLogger(cfg.App.LogLevel)

	day, err := cfg.ReplayDay()
	if err != nil {
		log.Fatal().Err(err).Msg("bad replay day")
	}

	symbols := make([]string, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		symbols = append(symbols, s.Symbol)
	}
	book := portfolio.New(symbols, cfg.Account.Cash, cfg.Account.CommissionRate)
	exec := execution.NewExecutor(execution.NewLogBackend(log), book, log)
	session := strategy.Session{
		OpenHour:    cfg.Session.OpenHour,
		OpenMinute:  cfg.Session.OpenMinute,
		CloseHour:   cfg.Session.CloseHour,
		CloseMinute: cfg.Session.CloseMinute,
	}

	drivers := make([]*strategy.Driver, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		entry, err := rules.BuildAll(sc.Entry)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", sc.Symbol).Msg("build entry rules")
		}
		exit, err := rules.BuildAll(sc.Exit)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", sc.Symbol).Msg("build exit rules")
		}
		replay, err := feed.OpenReplay(cfg.Feed.DataDir, sc.Symbol, day)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", sc.Symbol).Msg("open replay")
		}
		drivers = append(drivers, strategy.NewDriver(
			strategy.Config{Symbol: sc.Symbol, Allocation: sc.Allocation, EntryRules: entry, ExitRules: exit},
			replay, book, session, log))
	}

	var opts []engine.Option
	var writer *report.Writer
	if cfg.Report.Path != "" {
		writer, err = report.NewWriter(cfg.Report.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("open report sink")
		}
		defer writer.Close()
		opts = append(opts, engine.WithRecorder(writer))
	}

	rep := engine.New(drivers, exec, book, log, opts...).Run(context.Background())

	if writer != nil {
		for _, sym := range symbols {
			writer.WriteChart(sym, book.Position(sym))
		}
		writer.WriteSummary(rep)
	}
	log.Info().
		Int("starting_equity", rep.StartingEquity).
		Int("ending_equity", rep.EndingEquity).
		Int("net", rep.Net).
		Int("total_pl", rep.TotalPl).
		Int("total_commissions", rep.TotalCommissions).
		Msg("backtest complete")
}
