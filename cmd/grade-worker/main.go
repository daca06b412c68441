package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizsys/internal/common/cache"
	"quizsys/internal/common/db"
	commonmw "quizsys/internal/common/http/middleware"
	"quizsys/internal/common/mq"
	"quizsys/internal/common/storage"
	"quizsys/internal/grading/archive"
	"quizsys/internal/grading/controller"
	"quizsys/internal/grading/dispatcher"
	"quizsys/internal/grading/notify"
	"quizsys/internal/grading/repository"
	"quizsys/internal/grading/sandbox"
	"quizsys/internal/grading/sandbox/observer"
	"quizsys/internal/grading/service"
	appErr "quizsys/pkg/errors"
	"quizsys/pkg/utils/logger"
	"quizsys/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/grade_worker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "grade worker stopped: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	appCfg, err := loadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load app config failed: %w", err)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return err
	}
	defer func() {
		_ = mysqlDB.Close()
	}()
	if err := repository.Migrate(mysqlDB.DB()); err != nil {
		logger.Error(ctx, "apply migrations failed", zap.Error(err))
		return err
	}

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return err
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		return err
	}
	defer func() {
		_ = mqClient.Close()
	}()
	if err := pingWithTimeout(ctx, mqClient.Ping); err != nil {
		logger.Error(ctx, "kafka is unreachable", zap.Error(err))
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := observer.NewPrometheusRecorder(registry)
	if err != nil {
		logger.Error(ctx, "init metrics failed", zap.Error(err))
		return err
	}

	runner, err := sandbox.NewProcessRunner(appCfg.Sandbox, recorder)
	if err != nil {
		logger.Error(ctx, "init sandbox runner failed", zap.Error(err))
		return err
	}

	var transcripts service.TranscriptArchive
	if appCfg.Transcript.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return err
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Transcript.Bucket); err != nil {
			logger.Error(ctx, "ensure transcript bucket failed", zap.Error(err))
			return err
		}
		transcripts = archive.NewArchiver(objStorage, appCfg.Transcript.Bucket)
	}

	submissions := repository.NewSubmissionRepository(mysqlDB)
	statusRepo := repository.NewStatusRepository(redisCache, appCfg.Status.TTL)

	sinks := notify.Fanout{notify.NewBreakerSink("announcement-store", notify.NewAnnouncementSink(repository.NewAnnouncementRepository(mysqlDB)))}
	if appCfg.Notify.Topic != "" {
		sinks = append(sinks, notify.NewBreakerSink("announcement-queue", notify.NewQueueSink(mqClient, appCfg.Notify.Topic)))
	}
	updater, err := service.NewUpdater(service.UpdaterConfig{
		Store:         repository.NewAggregateStore(mysqlDB),
		Quizzes:       submissions,
		Sink:          sinks,
		NotifyTimeout: appCfg.Notify.Timeout,
	})
	if err != nil {
		logger.Error(ctx, "init updater failed", zap.Error(err))
		return err
	}

	gradeSvc, err := service.NewGradeService(service.Config{
		Submissions:    submissions,
		Questions:      repository.NewQuestionRepository(mysqlDB, redisCache, appCfg.Cache.QuestionTTL, appCfg.Cache.EmptyTTL),
		Points:         repository.NewScoreDistributionRepository(mysqlDB),
		Dispatcher:     dispatcher.New(runner, recorder),
		Updater:        updater,
		StatusRepo:     statusRepo,
		Archive:        transcripts,
		StatusTimeout:  appCfg.Status.Timeout,
		ArchiveTimeout: appCfg.Transcript.Timeout,
	})
	if err != nil {
		logger.Error(ctx, "init grading service failed", zap.Error(err))
		return err
	}
	enqueuer, err := service.NewEnqueuer(mqClient, appCfg.Kafka.GradeTopic, statusRepo)
	if err != nil {
		logger.Error(ctx, "init enqueuer failed", zap.Error(err))
		return err
	}

	if err := mqClient.SubscribeWithOptions(ctx, appCfg.Kafka.GradeTopic, gradeSvc.HandleMessage, appCfg.Kafka.subscribeOptions()); err != nil {
		logger.Error(ctx, "subscribe kafka failed", zap.Error(err))
		return err
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
		return err
	}

	probes := map[string]func(context.Context) error{
		"database": mysqlDB.Ping,
		"redis":    redisCache.Ping,
		"kafka":    mqClient.Ping,
	}
	previewGuard := commonmw.RateLimitMiddleware(
		commonmw.NewRateLimiter(redisCache, appCfg.RateLimit.RedisTimeout), "preview", appCfg.RateLimit.Preview)
	httpServer := buildHTTPServer(appCfg.Server, controller.NewGradingController(gradeSvc, enqueuer), previewGuard, registry, probes)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grade worker http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("topic", appCfg.Kafka.GradeTopic),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
			serveErr = err
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// Stop consuming first so an in-flight job finishes or stays uncommitted.
	_ = mqClient.Stop()
	shutdown, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdown); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return serveErr
}

func buildHTTPServer(cfg ServerConfig, grading *controller.GradingController, previewGuard gin.HandlerFunc, registry *prometheus.Registry,
	probes map[string]func(context.Context) error) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.NewHTTPMetrics(registry).Middleware())
	router.Use(requestLogger())

	router.GET("/healthz", healthHandler(probes))
	router.GET("/metrics", commonmw.PrometheusHandler(registry))
	grading.Register(router.Group("/api/v1/grading"), previewGuard)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(probes map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := make(map[string]string, len(probes))
		healthy := true
		for name, probe := range probes {
			if err := pingWithTimeout(c.Request.Context(), probe); err != nil {
				result[name] = err.Error()
				healthy = false
				continue
			}
			result[name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Code:    appErr.ServiceUnavailable,
				Message: "unhealthy",
				Data:    result,
			})
			return
		}
		response.Success(c, result)
	}
}

func pingWithTimeout(ctx context.Context, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return ping(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
