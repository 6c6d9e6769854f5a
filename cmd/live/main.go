package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/repque/intraday/internal/config"
	"github.com/repque/intraday/internal/engine"
	"github.com/repque/intraday/internal/execution"
	"github.com/repque/intraday/internal/feed"
	"github.com/repque/intraday/internal/metrics"
	"github.com/repque/intraday/internal/portfolio"
	"github.com/repque/intraday/internal/report"
	"github.com/repque/intraday/internal/rules"
	"github.com/repque/intraday/internal/strategy"
	"github.com/repque/intraday/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	log := util.NewLogger("info")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

		var src strategy.Feed
		switch cfg.Feed.Provider {
		case "stream":
			src = feed.DialStream(ctx, cfg.Feed.StreamURL, sc.Symbol, log)
		default:
			src = feed.NewPoller(cfg.Feed.QuoteURL, sc.Symbol, log)
		}
		drivers = append(drivers, strategy.NewDriver(
			strategy.Config{Symbol: sc.Symbol, Allocation: sc.Allocation, EntryRules: entry, ExitRules: exit},
			src, book, session, log))
	}

	var opts []engine.Option
	if cfg.Feed.Provider != "stream" {
		opts = append(opts, engine.WithInterval(time.Duration(cfg.Feed.PollIntervalSecs)*time.Second))
	}
	var writer *report.Writer
	if cfg.Report.Path != "" {
		writer, err = report.NewWriter(cfg.Report.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("open report sink")
		}
		defer writer.Close()
		opts = append(opts, engine.WithRecorder(writer))
	}

	log.Info().Str("provider", cfg.Feed.Provider).Int("strategies", len(drivers)).Msg("live engine started")
	rep := engine.New(drivers, exec, book, log, opts...).Run(ctx)

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
		Msg("live run complete")
}
