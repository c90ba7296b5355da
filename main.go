package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"omnidata/config"
	"omnidata/history"
	"omnidata/logger"
	"omnidata/models"
	"omnidata/pipeline"
	"omnidata/source"
	"omnidata/storage"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single refresh cycle and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Omnidata.Name,
		"version": cfg.Omnidata.Version,
	}).Info("starting omnidata")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	store := storage.NewStore(filepath.Join(cfg.Storage.DataDir, cfg.Storage.DataFile), cfg.Refresh.WindowSize)

	var recorder *history.Recorder
	if cfg.Storage.HistoryDB != "" {
		recorder, err = history.NewRecorder(cfg.Storage.HistoryDB)
		if err != nil {
			log.WithError(err).Error("failed to open history database")
			os.Exit(1)
		}
		defer recorder.Close()
	} else {
		log.WithComponent("main").Info("history database disabled; skipping recorder")
	}

	quote := source.NewCoinGeckoSource(cfg.Source.BaseURL, cfg.Source.SymbolIDs, cfg.Source.Timeout.Std())

	var fallback source.Fallback = source.NoFallback{}
	if cfg.Fallback.Enabled {
		fallback = source.NewDriftFallback(cfg.Fallback.DriftPct, cfg.Fallback.SeedMin, cfg.Fallback.SeedMax)
	}

	refresher := pipeline.NewRefresher(cfg, quote, fallback)

	portfolio, err := store.Load()
	if err != nil {
		log.WithError(err).Error("failed to load portfolio")
		os.Exit(1)
	}
	if len(portfolio) == 0 {
		log.WithComponent("main").Info("seeding default portfolio")
		portfolio = defaultPortfolio(cfg.Refresh.WindowSize)
	} else {
		log.WithComponent("main").WithFields(logger.Fields{"assets": len(portfolio)}).Info("portfolio restored from disk")
	}

	for _, asset := range portfolio {
		log.WithComponent("main").WithFields(logger.Fields{
			"symbol": asset.Symbol(),
			"kind":   asset.Kind(),
			"price":  asset.Price(),
			"sma":    asset.SMA(),
			"risk":   asset.RiskProfile(),
		}).Info("tracking asset")
	}

	if err := refresher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start refresher")
		os.Exit(1)
	}

	runCycle := func() {
		result, err := refresher.Refresh(ctx, portfolio)
		if err != nil {
			log.WithError(err).Warn("refresh cycle aborted")
			return
		}
		if err := store.Save(portfolio); err != nil {
			log.WithError(err).Error("failed to save portfolio")
			return
		}
		if recorder != nil {
			now := time.Now()
			for _, outcome := range result.Outcomes {
				if outcome.Source == "unchanged" {
					continue
				}
				if err := recorder.Record(outcome.Symbol, outcome.Price, outcome.Source, now); err != nil {
					log.WithError(err).Warn("failed to record history row")
				}
			}
			if total, err := recorder.Total(); err == nil {
				log.WithComponent("main").WithFields(logger.Fields{
					"batch_id": result.BatchID,
					"rows":     total,
				}).Info("history updated")
			}
		}
	}

	runCycle()

	if *once {
		log.Info("single cycle complete")
		refresher.Stop()
		return
	}

	interval := cfg.Refresh.Interval.Std()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.WithFields(logger.Fields{"interval": interval.String()}).Info("entering refresh loop")

	for {
		select {
		case <-ticker.C:
			runCycle()
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

			log.Info("starting graceful shutdown")

			done := make(chan struct{})
			go func() {
				refresher.Stop()
				close(done)
			}()

			select {
			case <-done:
				log.Info("graceful shutdown completed")
			case <-time.After(30 * time.Second):
				log.Warn("graceful shutdown timeout exceeded")
			}

			cancel()
			log.Info("omnidata stopped")
			return
		}
	}
}

// defaultPortfolio is the asset set tracked on a fresh install.
func defaultPortfolio(windowSize int) models.Portfolio {
	return models.Portfolio{
		models.NewEquity("AAPL", 150.00, "NASDAQ", windowSize),
		models.NewEquity("TSLA", 800.00, "NYSE", windowSize),
		models.NewCrypto("BTC", 45000.00, "Bitcoin Network", windowSize),
		models.NewCrypto("ETH", 3000.00, "Ethereum", windowSize),
	}
}
