package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"narration-pipeline/config"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	jobHandler "narration-pipeline/handler"
	"narration-pipeline/pkg/audit"
	"narration-pipeline/pkg/rabbitmq"
	"narration-pipeline/pkg/storage"
	"narration-pipeline/repository"
	"narration-pipeline/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	}

	store := storage.NewMediaStore(cfg.Storage, cfg.MinIOBucket, cfg.MediaBaseURL)
	if err := store.EnsureBucket(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to ensure media bucket")
	}

	sink := newAuditSink(cfg)
	repo := repository.NewRepo(cfg.DB)
	publisher := rabbitmq.NewPublisher(conn, cfg.Queue)
	notifier := processNotifier{publisher: publisher}

	pipelineService := service.NewPipelineService(repo, cfg, store, sink)
	libraryService := service.NewLibraryService(repo, cfg, store, sink, notifier)
	mappingService := service.NewMappingService(repo, sink)

	serviceDeps := jobHandler.ServiceDependencies{
		Pipeline: pipelineService,
		Library:  libraryService,
		Mappings: mappingService,
	}

	// Queue-triggered processing (upload enqueues a process message)
	processConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, jobHandler.ProcessTopology, cfg.Server.Workers, jobHandler.ProcessHandler)
	go func() {
		err := processConsumer.Consume(ctx, serviceDeps)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Process consumer error")
		}
	}()

	cutConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, jobHandler.CutTopology, cfg.Server.Workers, jobHandler.CutHandler)
	go func() {
		err := cutConsumer.Consume(ctx, serviceDeps)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Cut consumer error")
		}
	}()

	r := gin.Default()
	addHealth(r)
	jobHandler.RegisterRoutes(r, serviceDeps)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// processNotifier enqueues processing for freshly uploaded files.
type processNotifier struct {
	publisher *rabbitmq.Publisher
}

func (n processNotifier) NotifyProcess(ctx context.Context, message dto.ProcessMessage) error {
	return n.publisher.Publish(ctx, jobHandler.ProcessTopology, message)
}

func newAuditSink(cfg *config.Config) audit.Sink {
	if len(cfg.Audit.KafkaBrokers) > 0 {
		return audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
	}
	return audit.LogSink{}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
