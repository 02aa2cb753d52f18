package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/config"
	"github.com/carewellhq/hospital-scheduling/internal/inventory"
	"github.com/carewellhq/hospital-scheduling/internal/lock"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/resolution"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

// The sweeper cancels requests that are still Pending after their requested
// date has passed; nobody can accept a slot that is already in the past.
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.Info("sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}

	log.WithFields(logrus.Fields{
		"env":      cfg.Env,
		"interval": cfg.SweepInterval.String(),
	}).Info("running stale-request sweeper")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("create data dir")
	}

	grid, err := schedule.NewGrid(schedule.NewCSVStore(cfg.DataDir), log)
	if err != nil {
		log.WithError(err).Fatal("load schedule grid")
	}
	ledger, err := request.NewLedger(request.NewCSVStore(cfg.DataDir), log)
	if err != nil {
		log.WithError(err).Fatal("load request ledger")
	}
	inv, err := inventory.Load(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("load inventory")
	}
	repo, err := appointment.NewCSVRepository(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("load appointment store")
	}

	journal := resolution.NewJournal(cfg.DataDir)
	svc := resolution.NewService(grid, ledger, repo, inv, journal, lock.NewKeyedMutex(), log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *resolution.Service, log *logrus.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	today := time.Now().Format(schedule.DateLayout)
	swept, err := svc.SweepStaleRequests(runCtx, today)
	if err != nil {
		log.WithError(err).Error("sweep run error")
		return
	}
	log.WithFields(logrus.Fields{
		"swept":    swept,
		"duration": time.Since(start).String(),
	}).Info("sweep run complete")
}
