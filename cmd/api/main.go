package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/approval-service/internal/api/http"
	"github.com/spec-kit/approval-service/internal/api/http/handlers"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/observability"
	"github.com/spec-kit/approval-service/internal/persistence"
	"github.com/spec-kit/approval-service/internal/policy"
	"github.com/spec-kit/approval-service/internal/repository"
	"github.com/spec-kit/approval-service/internal/service"
	"github.com/spec-kit/approval-service/internal/worker"
)

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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)

	dispatcher := events.NewLoggingDispatcher(logger)
	metrics := observability.NewMetrics()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, userRepo, tokens, logger)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	approvalService := service.NewApprovalService(cfg.Approval, service.ApprovalDependencies{
		ApprovalRepo:     approvalRepo,
		TicketRepo:       ticketRepo,
		UserRepo:         userRepo,
		CommentRepo:      commentRepo,
		HistoryRepo:      historyRepo,
		ApproverPolicy:   policy.NewRuleBasedApproverPolicy(cfg.Approval, departmentRepo),
		EscalationPolicy: policy.NewManagerThenAdminPolicy(departmentRepo, userRepo),
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})

	notificationService := service.NewNotificationService(cfg.Notification, logger)
	notificationService.Register(dispatcher)

	escalationWorker := worker.NewEscalationWorker(cfg.Approval, approvalService, redis, logger)
	if err := escalationWorker.Start(); err != nil {
		logger.Fatal("failed to start escalation worker", zap.Error(err))
	}
	defer escalationWorker.Stop()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Approvals:      handlers.NewApprovalsHandler(approvalService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
