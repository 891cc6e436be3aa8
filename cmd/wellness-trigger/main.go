package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logpkg "parent-wellness/common/logger"
	"parent-wellness/internal/app"
	"parent-wellness/internal/config"

	"go.uber.org/zap"
)

func main() {
	reportNow := flag.Bool("report-now", false, "generate weekly reports for every user and exit")
	reportUser := flag.String("report-user", "", "generate the weekly report for one user and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "wellness-trigger")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// nil sender: push goes through FCM
	svc, err := app.NewTriggerService(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal("Failed to create trigger service", zap.Error(err))
	}

	// on-demand report runs
	if *reportNow || *reportUser != "" {
		runReports(ctx, svc, *reportUser, log)
		svc.Stop(ctx)
		return
	}

	log.Info("Starting wellness-trigger service")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := svc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
		cancel()
	}

	if err := svc.Stop(ctx); err != nil {
		log.Error("Error stopping service", zap.Error(err))
	}

	log.Info("Service stopped")
}

func runReports(ctx context.Context, svc *app.TriggerService, uid string, log *zap.Logger) {
	if uid != "" {
		report, err := svc.Reporter().RunOnce(ctx, uid)
		if err != nil {
			log.Error("Weekly report failed", zap.String("user_id", uid), zap.Error(err))
			return
		}
		log.Info("Weekly report generated", zap.String("user_id", uid), zap.String("report_id", report.ID))
		return
	}

	n, err := svc.Reporter().RunAll(ctx)
	if err != nil {
		log.Error("Weekly reports failed", zap.Error(err))
		return
	}
	log.Info("Weekly reports generated", zap.Int("count", n))
}
