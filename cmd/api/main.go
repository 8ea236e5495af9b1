package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-discipline-api/internal/config"
	"github.com/noah-isme/sma-discipline-api/internal/database"
	"github.com/noah-isme/sma-discipline-api/internal/handler"
	"github.com/noah-isme/sma-discipline-api/internal/middleware"
	"github.com/noah-isme/sma-discipline-api/internal/models"
	"github.com/noah-isme/sma-discipline-api/internal/repository"
	"github.com/noah-isme/sma-discipline-api/internal/router"
	"github.com/noah-isme/sma-discipline-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Incident{},
		&models.DetentionRule{},
		&models.DetentionSession{},
		&models.DetentionAssignment{},
		&models.DetentionQueueEntry{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	ruleRepo := repository.NewDetentionRuleRepository(db)
	sessionRepo := repository.NewDetentionSessionRepository(db)
	assignmentRepo := repository.NewDetentionAssignmentRepository(db)
	queueRepo := repository.NewDetentionQueueRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	liveService := service.NewLiveService(natsConn, cfg.ChannelBase, logger)

	qualificationService := service.NewQualificationService(incidentRepo, ruleRepo, logger)
	engine := service.NewDetentionEngine(sessionRepo, assignmentRepo, studentRepo, queueRepo, qualificationService, notificationService, liveService, logger)
	queueService := service.NewQueueService(queueRepo, sessionRepo, studentRepo, engine, logger)
	sessionService := service.NewSessionService(sessionRepo, assignmentRepo, incidentRepo, queueService, validate, liveService, logger)
	attendanceService := service.NewAttendanceService(assignmentRepo, incidentRepo, studentRepo, engine, notificationService, liveService, validate, cfg.AdminUserIDs, logger)
	incidentService := service.NewIncidentService(incidentRepo, studentRepo, qualificationService, engine, validate, logger)
	ruleService := service.NewRuleService(ruleRepo, validate, logger)
	dashboardService := service.NewDashboardService(qualificationService, studentRepo, assignmentRepo, redisClient, cfg.DashboardCacheTTL, logger)

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()
	notificationService.Start(serviceCtx)
	liveService.Start(serviceCtx)

	incidentHandler := handler.NewIncidentHandler(incidentService, logger)
	ruleHandler := handler.NewRuleHandler(ruleService, logger)
	sessionHandler := handler.NewDetentionSessionHandler(sessionService, engine, queueService, logger)
	assignmentHandler := handler.NewDetentionAssignmentHandler(engine, attendanceService, logger)
	queueHandler := handler.NewDetentionQueueHandler(queueService, logger)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.NotificationKeepAlive)
	liveHandler := handler.NewLiveHandler(liveService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		IncidentHandler:     incidentHandler,
		RuleHandler:         ruleHandler,
		SessionHandler:      sessionHandler,
		AssignmentHandler:   assignmentHandler,
		QueueHandler:        queueHandler,
		DashboardHandler:    dashboardHandler,
		NotificationHandler: notificationHandler,
		LiveHandler:         liveHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
