package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benvon/zentask/internal/board"
	"github.com/benvon/zentask/internal/config"
	"github.com/benvon/zentask/internal/handlers"
	"github.com/benvon/zentask/internal/logger"
	"github.com/benvon/zentask/internal/middleware"
	"github.com/benvon/zentask/internal/queue"
	"github.com/benvon/zentask/internal/request"
	"github.com/benvon/zentask/internal/services/ai"
	"github.com/benvon/zentask/internal/telemetry"
	"github.com/benvon/zentask/internal/workers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.LogFormat, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger) // stderr sync errors are expected on some platforms
	}()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("ai_api_key", ai.SanitizeAPIKey(cfg.OpenAIKey)),
		zap.String("tips_queue", cfg.TipsQueue),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracerProvider := initTracing(cfg, zapLogger)
	if tracerProvider != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
				zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
			}
		}()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = middleware.NewRedisClient(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")
	}

	jobQueue, err := newJobQueue(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_tip_queue", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_tip_queue", zap.Error(err))
		}
	}()

	tipService := newTipService(cfg, zapLogger, debugMode)
	zapLogger.Info("initialized_tip_service", zap.Stringer("tips", tipService))

	store := board.NewStore(board.WithLogger(zapLogger))
	dispatcher := workers.NewTipDispatcher(store, jobQueue, zapLogger)
	tipWorker := workers.NewTipWorker(store, jobQueue, tipService, cfg.TipsWorkerPrefetch, zapLogger)

	trustedProxies, err := request.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		zapLogger.Fatal("invalid_trusted_proxies", zap.Error(err))
	}
	zapLogger.Info("client_ip_resolution", zap.Int("trusted_proxy_ranges", trustedProxies.Len()))

	rateStore, err := middleware.NewRateLimitStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	tipsRateLimit, err := middleware.RateLimit(cfg.TipsRateLimit, rateStore, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_tips_rate_limit", zap.Error(err))
	}

	deps := map[string]handlers.Pinger{"queue": jobQueue}
	if redisClient != nil {
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthChecker := handlers.NewHealthChecker(version, zapLogger, deps)

	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_document", zap.Error(err))
	}

	taskHandler := handlers.NewTaskHandler(store, dispatcher, zapLogger,
		handlers.WithTipsMiddleware(tipsRateLimit),
	)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, outermost first
	if tracerProvider != nil {
		r.Use(telemetry.RouterMiddleware(tracerProvider))
		zapLogger.Info("otel_middleware_enabled")
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP(trustedProxies))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.Recoverer(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", healthChecker.Version).Methods(http.MethodGet)
	openAPIHandler.RegisterRoutes(r)

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	taskHandler.RegisterRoutes(apiRouter)

	// Preflight requests only reach middleware when a route matches
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Jobs queued after this fail at enqueue and resolve with the failure text
		if err := tipWorker.Run(workerCtx); err != nil {
			zapLogger.Error("tip_worker_stopped_unexpectedly", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	// Outstanding tip requests finish before the board is discarded
	workerCancel()
	wg.Wait()

	zapLogger.Info("server_exited")
}

// initTracing installs the OTLP tracer provider when enabled. Failures
// disable tracing instead of stopping the server.
func initTracing(cfg *config.Config, zapLogger *zap.Logger) *sdktrace.TracerProvider {
	if !cfg.OTELEnabled {
		return nil
	}
	if cfg.OTELEndpoint == "" {
		zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		return nil
	}
	tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName, version, cfg.OTELEndpoint)
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return nil
	}
	zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
	return tp
}

// newTipService builds the tip provider. A missing key or unknown provider
// leaves AI features unconfigured.
func newTipService(cfg *config.Config, zapLogger *zap.Logger, debugMode bool) *ai.TipService {
	generator, err := ai.NewTipGenerator(ai.Settings{
		Provider:  cfg.AIProvider,
		APIKey:    cfg.OpenAIKey,
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.AIModel,
		DebugMode: debugMode,
	}, zapLogger)
	if err != nil {
		zapLogger.Warn("failed_to_create_ai_provider_ai_features_disabled", zap.Error(err))
		generator = nil
	}
	return ai.NewTipService(generator, zapLogger)
}

// newJobQueue creates the configured tip queue. RabbitMQ connections are
// retried with exponential backoff to ride out broker startup.
func newJobQueue(cfg *config.Config, zapLogger *zap.Logger) (queue.JobQueue, error) {
	if cfg.TipsQueue != config.QueueRabbitMQ {
		zapLogger.Info("using_memory_tip_queue")
		return queue.NewMemoryQueue(queue.DefaultMemoryCapacity), nil
	}

	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var q *queue.RabbitMQQueue
		q, err = queue.NewRabbitMQQueue(cfg.RabbitMQURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq",
				zap.String("queue", q.QueueName()),
				zap.Int("prefetch", cfg.TipsWorkerPrefetch),
			)
			return q, nil
		}

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}
	return nil, err
}
