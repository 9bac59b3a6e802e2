package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/migrations"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/deliverylog"
	"github.com/dmitrymomot/notifykit/pkg/device"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/push/apns"
	"github.com/dmitrymomot/notifykit/pkg/push/fcm"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

type appConfig struct {
	ServiceName string        `env:"SERVICE_NAME" envDefault:"notifyd"`
	Environment string        `env:"ENVIRONMENT" envDefault:"production"`
	Concurrency int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	PullEvery   time.Duration `env:"WORKER_PULL_INTERVAL" envDefault:"1s"`
	LockTimeout time.Duration `env:"WORKER_LOCK_TIMEOUT" envDefault:"2m"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		appCfg   appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		apnsCfg  apns.Config
		fcmCfg   fcm.Config
		httpCfg  httpserver.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&apnsCfg)
	config.MustLoad(&fcmCfg)
	config.MustLoad(&httpCfg)

	logOpts := []logger.Option{logger.WithService(appCfg.ServiceName)}
	if appCfg.Environment != "production" {
		logOpts = append(logOpts, logger.WithDevelopment())
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	log.Info("starting", slog.String("service", appCfg.ServiceName))

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		fatal(log, "failed to connect postgres", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, ".", log); err != nil {
		fatal(log, "failed to apply migrations", err)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		fatal(log, "failed to connect redis", err)
	}
	defer redisClient.Close()

	registry, err := device.NewPostgresRegistry(pool)
	if err != nil {
		fatal(log, "failed to build device registry", err)
	}
	logStore, err := deliverylog.NewPostgresStore(pool)
	if err != nil {
		fatal(log, "failed to build delivery log store", err)
	}

	// Providers are constructed even without credentials; the router
	// degrades per platform instead of refusing to start.
	apnsClient, err := apns.New(apnsCfg, apns.WithLogger(log))
	if err != nil {
		fatal(log, "failed to build apns client", err)
	}
	fcmClient, err := fcm.New(fcmCfg, fcm.WithLogger(log))
	if err != nil {
		fatal(log, "failed to build fcm client", err)
	}
	log.Info("providers configured",
		slog.Bool("apns", apnsClient.Configured()),
		slog.Bool("fcm", fcmClient.Configured()))

	router := push.NewRouter(
		push.WithAPNS(apnsClient),
		push.WithFCM(fcmClient),
		push.WithDeviceSource(registry),
		push.WithRouterLogger(log),
	)

	dispatcher, err := dispatch.NewDispatcher(router, registry, logStore, dispatch.WithLogger(log))
	if err != nil {
		fatal(log, "failed to build dispatcher", err)
	}

	storage, err := queue.NewRedisStorage(redisClient)
	if err != nil {
		fatal(log, "failed to build queue storage", err)
	}
	worker, err := queue.NewWorker(storage,
		queue.WithQueues(dispatch.QueueNames()...),
		queue.WithMaxConcurrentJobs(appCfg.Concurrency),
		queue.WithPullInterval(appCfg.PullEvery),
		queue.WithLockTimeout(appCfg.LockTimeout),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		fatal(log, "failed to build worker", err)
	}
	dispatcher.Register(worker)

	srv := httpserver.New(httpCfg, httpserver.WithLogger(log))
	handler := opsRouter(log, logStore, storage,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, handler) })

	if err := g.Wait(); err != nil {
		fatal(log, "service exited with error", err)
	}
	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
