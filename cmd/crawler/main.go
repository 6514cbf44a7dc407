package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/cian-crawler/internal/api"
	"github.com/user/cian-crawler/internal/browser"
	"github.com/user/cian-crawler/internal/config"
	"github.com/user/cian-crawler/internal/domain"
	"github.com/user/cian-crawler/internal/extract"
	"github.com/user/cian-crawler/internal/fetcher"
	"github.com/user/cian-crawler/internal/loader"
	"github.com/user/cian-crawler/internal/monitoring"
	"github.com/user/cian-crawler/internal/proxy"
	"github.com/user/cian-crawler/internal/snapshot"
	"github.com/user/cian-crawler/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not load config:", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if len(os.Args) < 2 {
		usage()
		return 2
	}

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "fetch":
		return runFetch(ctx, cfg, metrics, logger, os.Args[2:])
	case "load":
		return runLoad(ctx, cfg, metrics, logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		return 2
	}
}

func runFetch(ctx context.Context, cfg *config.Config, m *monitoring.Metrics, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	finalPage := fs.Int("final-page", cfg.FinalPage, "inclusive upper bound on the result page index")
	fs.Parse(args)

	regions, err := cfg.RegionList()
	if err != nil {
		logger.Error("bad region configuration", zap.Error(err))
		return 1
	}

	session, err := browser.NewSession(proxy.NewManager(cfg.ProxyList()))
	if err != nil {
		logger.Error("cannot start browser", zap.Error(err))
		return 1
	}
	defer session.Close()

	stopOps := serveOps(cfg.ServerPort, nil, nil, logger)
	defer stopOps()

	f := fetcher.New(session, snapshot.NewStore(cfg.PagesDir),
		time.Duration(cfg.SettleSeconds)*time.Second,
		time.Duration(cfg.PageSettleSeconds)*time.Second,
		m, logger)

	code := 0
	for _, rep := range f.Run(ctx, regions, *finalPage) {
		logger.Info("region report",
			zap.String("city", rep.Region.City),
			zap.Int("pages_saved", rep.PagesSaved),
			zap.String("reason", rep.Reason.String()),
		)
		if rep.Reason == domain.TransportError {
			code = 1
		}
	}
	return code
}

func runLoad(ctx context.Context, cfg *config.Config, m *monitoring.Metrics, logger *zap.Logger, args []string) int {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	reload := fs.Bool("reload", false, "reprocess snapshots already marked as loaded")
	fs.Parse(args)

	regions, err := cfg.RegionList()
	if err != nil {
		logger.Error("bad region configuration", zap.Error(err))
		return 1
	}

	pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL, storage.DefaultRefreshPolicy())
	if err != nil {
		logger.Error("failed to connect to postgres", zap.Error(err))
		return 1
	}
	defer pg.Close()

	var rds *storage.RedisStore
	var marks loader.Marks
	if cfg.RedisAddr != "" {
		rds = storage.NewRedisStore(cfg.RedisAddr)
		marks = rds
	}

	stopOps := serveOps(cfg.ServerPort, pg, rds, logger)
	defer stopOps()

	policy := extract.SkipOffer
	if cfg.StrictOffers {
		policy = extract.AbortSnapshot
	}
	ex := extract.New(extract.MarkerLocator{}, policy, m, logger)

	ld := loader.New(snapshot.NewStore(cfg.PagesDir), ex, pg, marks,
		time.Duration(cfg.ProcessedTTLDays)*24*time.Hour, *reload, m, logger)

	if err := ld.Run(ctx, regions); err != nil {
		logger.Error("load run aborted", zap.Error(err))
		return 1
	}
	return 0
}

// serveOps exposes /metrics and /api/health for the duration of the
// run. The returned func shuts the server down.
func serveOps(port string, pg *storage.PostgresStore, rds *storage.RedisStore, logger *zap.Logger) func() {
	server := api.NewServer(port, pg, rds, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server stopped", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("ops server shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: crawler <command> [flags]")
	fmt.Fprintln(os.Stderr, "  fetch [--final-page N]  crawl result pages into the snapshot store")
	fmt.Fprintln(os.Stderr, "  load  [--reload]        parse saved snapshots and upsert offers")
}
