package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/clinicore/labflow/internal/config"
	v1 "github.com/clinicore/labflow/internal/handler/v1"
	"github.com/clinicore/labflow/internal/notify"
	"github.com/clinicore/labflow/internal/repository"
	"github.com/clinicore/labflow/internal/service"
	"github.com/clinicore/labflow/pkg/auth"
	"github.com/clinicore/labflow/pkg/database"
	"github.com/clinicore/labflow/pkg/logger"
	"github.com/clinicore/labflow/pkg/metrics"
	"github.com/clinicore/labflow/pkg/tracer"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting labflow",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		log.Error("failed to initialize tracing", zap.Error(err))
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		return err
	}

	m := metrics.NewCollector("labflow")

	// Repositories
	txManager := repository.NewTxManager(db)
	seqGen := repository.NewSequenceGenerator(db)
	orderRepo := repository.NewLabOrderRepository(db)
	sampleRepo := repository.NewLabSampleRepository(db)
	resultRepo := repository.NewLabResultRepository(db)
	testCatalog := repository.NewLabTestCatalog(db)
	patientRepo := repository.NewPatientRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Notification pipeline: outbox rows are published to a durable queue
	// and consumed into doctor emails, decoupled from result writes.
	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Error("failed to connect to message broker", zap.Error(err))
		return err
	}
	defer amqpConn.Close()

	publisher, err := notify.NewAMQPPublisher(amqpConn, cfg.AMQP.QueueName)
	if err != nil {
		log.Error("failed to set up publisher", zap.Error(err))
		return err
	}

	dispatcher := notify.NewDispatcher(outboxRepo, publisher, cfg.Notifier.PollInterval, m, log)
	dispatcher.Start()

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	consumer, err := notify.NewConsumer(amqpConn, cfg.AMQP.QueueName, mailer, log)
	if err != nil {
		log.Error("failed to set up consumer", zap.Error(err))
		return err
	}
	if err := consumer.Start(); err != nil {
		log.Error("failed to start consumer", zap.Error(err))
		return err
	}

	// Services
	jwtManager := auth.NewJWTManager(cfg.JWT)
	auditSvc := service.NewAuditService(auditRepo, log, m)
	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	orderSvc := service.NewOrderService(orderRepo, patientRepo, userRepo, testCatalog, seqGen, txManager, auditSvc, m, log)
	sampleSvc := service.NewSampleService(sampleRepo, orderRepo, testCatalog, seqGen, txManager, auditSvc, m, log)
	resultSvc := service.NewResultService(resultRepo, orderRepo, patientRepo, userRepo, testCatalog, outboxRepo, dispatcher, txManager, auditSvc, m, log)
	verifySvc := service.NewVerificationService(resultRepo, auditSvc, m, log)
	timelineSvc := service.NewTimelineService(log, service.NewLabOrderTimelineSource(orderRepo))

	router := v1.NewRouter(v1.RouterDeps{
		Config:     cfg,
		JWTManager: jwtManager,
		Metrics:    m,
		Logger:     log,
		Auth:       v1.NewAuthHandler(authSvc),
		Orders:     v1.NewOrderHandler(orderSvc),
		Samples:    v1.NewSampleHandler(sampleSvc),
		Results:    v1.NewResultHandler(resultSvc, verifySvc),
		Timeline:   v1.NewTimelineHandler(timelineSvc),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("http server failed", zap.Error(err))
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}

	// Stop producers before consumers so in-flight alerts drain.
	dispatcher.Shutdown()
	consumer.Shutdown()
	auditSvc.Shutdown()

	log.Info("shutdown complete")
	return nil
}
