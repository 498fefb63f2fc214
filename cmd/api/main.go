package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"sales-insights-go/internal/aggregator"
	"sales-insights-go/internal/api"
	"sales-insights-go/internal/config"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/pipeline"
	"sales-insights-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	log.WithField("service", "sales-insights-api").Info("starting service")

	ledger, err := store.Open(cfg.LedgerPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open run ledger")
	}
	defer ledger.Close()

	h := api.NewHandler(cfg.OutputDir, ledger, log)
	if err := h.Reload(); err != nil {
		log.WithError(err).Fatal("failed to load tables")
	}

	// Refresh rebuilds the derived tables from the persisted flat table.
	runner := pipeline.New(pipeline.Options{
		ReferencePath: cfg.ReferencePath,
		OutputDir:     cfg.OutputDir,
		Aggregate: aggregator.Options{
			TopSpecs: cfg.TopSpecs,
			SellerType: aggregator.SellerTypeRules{
				WholesaleAbovePercent: cfg.WholesaleMixPercent,
				RetailBelowPercent:    cfg.RetailMixPercent,
				RetailMinBuyers:       cfg.RetailMinBuyers,
			},
		},
		Workbook: true,
	}, nil, ledger, log)
	h.SetRefresher(func(ctx context.Context) error {
		_, err := runner.Aggregate(ctx)
		return err
	})

	if cfg.RefreshCron != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.RefreshCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := h.Refresh(ctx); err != nil {
				log.WithError(err).Error("scheduled refresh failed")
			}
		})
		if err != nil {
			log.WithError(err).WithField("spec", cfg.RefreshCron).Fatal("invalid REFRESH_CRON")
		}
		c.Start()
		defer c.Stop()
		log.WithField("spec", cfg.RefreshCron).Info("scheduled table refresh")
	}

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(h, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}
