// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/app"
	"github.com/unclebandit/leadflow-backend/internal/auth"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/controller"
	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/handler"
	"github.com/unclebandit/leadflow-backend/internal/lock"
	"github.com/unclebandit/leadflow-backend/internal/logging"
	"github.com/unclebandit/leadflow-backend/internal/middleware"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/queue"
	"github.com/unclebandit/leadflow-backend/internal/repository"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logging.Setup(cfg.Environment, cfg.SentryDSN); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed, continuing without it")
	}
	defer logging.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DSN(), db.Options{
		MaxIdleConns: cfg.DBMaxIdleConns,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer conn.Close()
	logrus.Info("Database connected")

	q, closeQueue, err := app.Queue(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up queue")
	}
	defer closeQueue()

	// Without a broker the delivery worker runs in this process.
	if _, inProcess := q.(*queue.InMemoryQueue); inProcess {
		if err := app.DeliveryWorker(conn, cfg).Start(q); err != nil {
			logrus.WithError(err).Fatal("Failed to start delivery worker")
		}
		logrus.Info("In-process delivery worker started")
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		rl := lock.NewRedisLocker(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err := rl.Ping(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rl.Close()
		locker = rl
		logrus.Info("Trigger lease backed by Redis")
	}

	// Repositories
	store := &repository.AutomationStore{DB: conn}
	sequenceRepo := &repository.SequenceRepository{DB: conn}
	enrollmentRepo := &repository.EnrollmentRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}
	outboundRepo := &repository.OutboundMessageRepository{DB: conn}
	userRepo := &repository.UserRepository{DB: conn}

	// Services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	automationService := &service.AutomationService{
		Store:    store,
		Queue:    q,
		Locker:   locker,
		Workers:  cfg.AutomationWorkers,
		LeaseTTL: cfg.TriggerLeaseTTL,
	}
	sequenceService := &service.SequenceService{
		SequenceRepo:   sequenceRepo,
		SequenceWriter: store,
		EnrollmentRepo: enrollmentRepo,
		TemplateRepo:   templateRepo,
		LeadRepo:       leadRepo,
		OutboundStats:  outboundRepo,
	}
	authService := &service.AuthService{UserRepo: userRepo, Tokens: tokens}

	automationController := &controller.AutomationController{AutomationService: automationService}
	sequenceController := &controller.SequenceController{SequenceService: sequenceService}
	authController := &controller.AuthController{AuthService: authService}
	sequenceHandler := handler.NewSequenceHandler(sequenceService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/api/health", controller.Health)
	r.Post("/api/auth/login", authController.Login)
	r.With(middleware.CronSecret(cfg.CronSecret)).Get("/api/cron/automation", automationController.Trigger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens))
		r.Use(middleware.RequireRole(model.RoleAdmin))

		// Automation routes
		r.Post("/api/automation/templates", sequenceController.CreateTemplate)
		r.Post("/api/automation/sequences", sequenceController.CreateSequence)
		r.Get("/api/automation/sequences/{id}", sequenceHandler.GetSequenceHandlerWithStats)
		r.Post("/api/automation/enroll", sequenceController.Enroll)
		r.Get("/api/automation/enrollments/{id}", sequenceController.GetEnrollment)

		r.Post("/api/admin/users", authController.CreateUser)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.ServerPort).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
