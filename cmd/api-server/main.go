package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/carewellhq/hospital-scheduling/internal/api"
	"github.com/carewellhq/hospital-scheduling/internal/appointment"
	"github.com/carewellhq/hospital-scheduling/internal/config"
	"github.com/carewellhq/hospital-scheduling/internal/db"
	"github.com/carewellhq/hospital-scheduling/internal/inventory"
	"github.com/carewellhq/hospital-scheduling/internal/lock"
	"github.com/carewellhq/hospital-scheduling/internal/request"
	"github.com/carewellhq/hospital-scheduling/internal/resolution"
	"github.com/carewellhq/hospital-scheduling/internal/schedule"
)

const version = "0.3.0"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"env":       cfg.Env,
		"http_port": cfg.HTTPPort,
		"backend":   cfg.Backend,
		"data_dir":  cfg.DataDir,
	}).Info("configuration loaded")

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

	var pgPool *pgxpool.Pool
	var repo appointment.Repository
	switch cfg.Backend {
	case config.BackendPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		cancelPg()
		if err != nil {
			log.WithError(err).Fatal("postgres connection error")
		}
		defer pgPool.Close()
		repo = appointment.NewPgRepository(pgPool)
		log.Info("connected to Postgres")
	default:
		repo, err = appointment.NewCSVRepository(cfg.DataDir)
		if err != nil {
			log.WithError(err).Fatal("load appointment store")
		}
	}

	var rdb *redis.Client
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rdb, err = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Fatal("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("error closing redis")
			}
		}()
		locker = lock.NewRedisSlotLocker(rdb, cfg.LockTTL)
		log.Info("connected to Redis, using distributed slot locks")
	} else {
		locker = lock.NewKeyedMutex()
	}

	journal := resolution.NewJournal(cfg.DataDir)
	resolver := resolution.NewService(grid, ledger, repo, inv, journal, locker, log)

	// Undo any accept sequence interrupted by a crash before serving.
	if err := resolver.Recover(rootCtx); err != nil {
		log.WithError(err).Fatal("journal recovery failed")
	}

	router := api.NewRouter(api.RouterConfig{
		Grid:     grid,
		Ledger:   ledger,
		Repo:     repo,
		Resolver: resolver,
		Log:      log,
		Metrics:  api.NewMetrics(),
		DataDir:  cfg.DataDir,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
