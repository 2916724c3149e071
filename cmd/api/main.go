package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/ohd-platform/facility-helpdesk/internal/api/http"
	"github.com/ohd-platform/facility-helpdesk/internal/api/http/handlers"
	"github.com/ohd-platform/facility-helpdesk/internal/auth"
	"github.com/ohd-platform/facility-helpdesk/internal/config"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/mail"
	"github.com/ohd-platform/facility-helpdesk/internal/observability"
	"github.com/ohd-platform/facility-helpdesk/internal/persistence"
	"github.com/ohd-platform/facility-helpdesk/internal/realtime"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
	"github.com/ohd-platform/facility-helpdesk/internal/repository/memory"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
	"github.com/ohd-platform/facility-helpdesk/internal/worker"
)

type stores struct {
	requests      repository.RequestRepository
	history       repository.RequestHistoryRepository
	notifications repository.NotificationRepository
	facilities    repository.FacilityRepository
	users         repository.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	st := openStores(pg)
	st.facilities = repository.NewCachedFacilityRepository(st.facilities, redis.Handle(), cfg.Redis.FacilityCacheTTL, logger)

	if cfg.Directory.SeedFile != "" {
		nf, nu, err := repository.SeedDirectories(ctx, cfg.Directory.SeedFile, st.facilities, st.users)
		if err != nil {
			logger.Fatal("failed to seed directories", zap.Error(err))
		}
		logger.Info("directories seeded", zap.Int("facilities", nf), zap.Int("users", nu))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	hub := realtime.NewHub(logger)
	var pusher service.Pusher = hub
	if client := redis.Handle(); client != nil {
		broker := realtime.NewRedisBroker(client, cfg.Redis.NotifyChannel, hub, logger)
		pusher = broker
		go func() {
			if err := broker.Run(ctx); err != nil {
				logger.Error("notification relay stopped", zap.Error(err))
			}
		}()
	}

	var mailer service.Mailer
	if cfg.Notification.EmailEnabled() {
		mailer = mail.NewResendMailer(cfg.Notification.ResendAPIKey, cfg.Notification.EmailFrom)
	}

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: st.notifications,
		Facilities:       st.facilities,
		Users:            st.users,
		Pusher:           pusher,
		Mailer:           mailer,
		Metrics:          metrics,
		Logger:           logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: st.requests,
		HistoryRepo: st.history,
		Facilities:  st.facilities,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	pool := worker.NewPool(worker.PoolConfig{
		Workers:     cfg.Notification.Workers,
		QueueSize:   cfg.Notification.QueueSize,
		MaxAttempts: cfg.Notification.MaxAttempts,
		RetryBase:   cfg.Notification.RetryBase,
	}, logger)
	worker.StartNotificationWorker(dispatcher, pool, notificationService)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, st.users)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, metrics),
		Requests:       handlers.NewRequestsHandler(requestService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
	})

	pushServer := &http.Server{
		Addr: cfg.Realtime.Addr(),
		Handler: realtime.NewServer(realtime.ServerConfig{
			Hub:            hub,
			Auth:           authMiddleware,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			Logger:         logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("push listener started", zap.String("addr", pushServer.Addr))
		if err := pushServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("push listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = pushServer.Shutdown(shutdownCtx)
	if err := pool.Close(shutdownCtx); err != nil {
		logger.Warn("notification jobs left unfinished", zap.Error(err))
	}
	cancel()
}

func openStores(pg *persistence.Postgres) stores {
	if !pg.Enabled() {
		return stores{
			requests:      memory.NewRequestRepository(),
			history:       memory.NewHistoryRepository(),
			notifications: memory.NewNotificationRepository(),
			facilities:    memory.NewFacilityRepository(),
			users:         memory.NewUserRepository(),
		}
	}
	pool := pg.PoolHandle()
	return stores{
		requests:      repository.NewRequestRepository(pool),
		history:       repository.NewRequestHistoryRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
		facilities:    repository.NewFacilityRepository(pool),
		users:         repository.NewUserRepository(pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
