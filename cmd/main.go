package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/auth"
	"github.com/forest-guardian/agrosense-ndvi/internal/cache"
	"github.com/forest-guardian/agrosense-ndvi/internal/config"
	"github.com/forest-guardian/agrosense-ndvi/internal/delivery"
	"github.com/forest-guardian/agrosense-ndvi/internal/loader"
	"github.com/forest-guardian/agrosense-ndvi/internal/loader/gdal"
	"github.com/forest-guardian/agrosense-ndvi/internal/logger"
	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
	"github.com/forest-guardian/agrosense-ndvi/internal/notification"
	"github.com/forest-guardian/agrosense-ndvi/internal/openeo"
	"github.com/forest-guardian/agrosense-ndvi/internal/sentinel"
	"github.com/forest-guardian/agrosense-ndvi/internal/session"
	"github.com/forest-guardian/agrosense-ndvi/internal/stac"
	"github.com/forest-guardian/agrosense-ndvi/internal/ui"
)

var (
	configPath  = flag.String("config", "configs/agrosense.yaml", "Path to configuration file")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
)

func printBanner() {
	banner := figure.NewFigure("AgroSense", "isometric1", true)
	bannercolor.Cyan(banner.String())
	bannercolor.Cyan("NDVI field analyzer")
	fmt.Println()
}

// loadEnv reads the first .env file found; missing files are not an error.
func loadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func main() {
	flag.Parse()
	loadEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bannercolor.Red("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		bannercolor.Red("Invalid configuration: %v", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		bannercolor.Red("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("agrosense stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discord := notification.NewDiscord(cfg.Notification.DiscordErrorURL, cfg.Notification.DiscordSuccessURL, nil)
	defer func() {
		if r := recover(); r != nil {
			bannercolor.Red("\nPANIC: %v\nExiting...", r)
			message := fmt.Sprintf("AgroSense panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			if cfg.Notification.Enabled {
				if err := discord.SendError(message); err != nil {
					log.Error("failed to send notification", zap.Error(err))
				}
			}
			panic(r)
		}
	}()

	m := metrics.New()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, m, log)
	}

	httpClient := &http.Client{Timeout: cfg.Copernicus.Timeout}
	tokens, err := auth.NewTokenSource(ctx, auth.Credentials{
		ClientID:     cfg.Copernicus.ClientID,
		ClientSecret: cfg.Copernicus.ClientSecret,
		TokenURL:     cfg.Copernicus.TokenURL,
	}, cfg.Copernicus.TokenEarlyExpiry, httpClient)
	if err != nil {
		return err
	}

	catalog := stac.NewClient(cfg.Copernicus.STACURL, httpClient, tokens, m, log.Named("stac"))
	processor := openeo.NewClient(cfg.Copernicus.OpenEOURL, httpClient, tokens, auth.OIDCBearer(cfg.Copernicus.OIDCProvider), m, log.Named("openeo"))

	resolver := sentinel.NewResolver(catalog, sentinel.ResolverConfig{
		Collection:    cfg.Resolver.Collection,
		ToleranceDays: cfg.Resolver.ToleranceDays,
		MaxCloudCover: cfg.Resolver.MaxCloudCover,
		Limit:         cfg.Resolver.Limit,
	}, log.Named("resolver"))
	aggregator := sentinel.NewAggregator(processor, sentinel.AggregatorConfig{
		Collection:      cfg.Aggregator.Collection,
		MaxCloudCover:   cfg.Aggregator.MaxCloudCover,
		BreakerFailures: cfg.Aggregator.BreakerFailures,
		BreakerTimeout:  cfg.Aggregator.BreakerTimeout,
	}, log.Named("aggregator"))

	analyzer := delivery.NewAnalyzer(resolver, aggregator, delivery.Options{
		Workers: cfg.Analysis.Workers,
		Retry: delivery.RetryPolicy{
			RetryNoImagery: cfg.Analysis.RetryNoImagery,
			RetryFailed:    cfg.Analysis.RetryFailed,
		},
	}, m, log.Named("analyzer")).WithProgress(os.Stderr)
	if cfg.Notification.Enabled {
		analyzer.WithNotifier(discord)
	}

	fileLoader := loader.New(gdal.NewReader(log.Named("gdal")), log.Named("loader"))
	sessions := cache.NewFileCache[session.State](cfg.Storage.DataDir, "sessions")

	app := ui.NewApp(
		ui.NewConsole(os.Stdin, os.Stdout),
		session.New(analyzer),
		fileLoader,
		sessions,
		ui.Options{
			ExportDir: filepath.Join(cfg.Storage.DataDir, "exports"),
			MapDir:    filepath.Join(cfg.Storage.DataDir, "maps"),
		},
		log,
	)

	printBanner()
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
