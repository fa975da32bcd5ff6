// Docpipe API — HTTP-вход системы обработки документов.
//
// API:
//   - Принимает запросы на запуск runs
//   - Отдаёт агрегированный статус run из Pipeline Status Store
//   - Управляет определениями pipeline
//
// Если RabbitMQ недоступен, API переходит в локальный режим:
// все шаги выполняются синхронно внутри запроса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Docpipe/internal/api"
	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/executor"
	"github.com/shaiso/Docpipe/internal/kv"
	"github.com/shaiso/Docpipe/internal/mq"
	"github.com/shaiso/Docpipe/internal/notify"
	"github.com/shaiso/Docpipe/internal/orchestrator"
	"github.com/shaiso/Docpipe/internal/repo"
	"github.com/shaiso/Docpipe/internal/scheduler"
	"github.com/shaiso/Docpipe/internal/statestore"
	"github.com/shaiso/Docpipe/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpipe_api_http_requests_total",
		Help: "Total HTTP requests handled by docpipe_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("docpipe-api")
	logger.Info("starting docpipe-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	definitionRepo := repo.NewDefinitionRepo(pool)

	// Redis — Pipeline Status Store
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = kv.DefaultURL()
	}

	kvStore, err := kv.NewRedis(ctx, redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer kvStore.Close()
	logger.Info("redis connected")

	notifier := notify.New(notify.Config{
		BaseURL: os.Getenv("CALLBACK_BASE_URL"),
		Logger:  logger,
	})

	status := statestore.New(statestore.Config{
		KV:       kvStore,
		Notifier: notifier,
		Logger:   logger,
	})

	// RabbitMQ. Недоступность не фатальна: API работает в локальном
	// режиме и выполняет шаги синхронно.
	localMode := false
	var queue orchestrator.Queue

	mqConn, err := mq.NewConnection(mq.ConnConfig{
		URL:    os.Getenv("RABBITMQ_URL"),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in local mode", "error", err)
		localMode = true
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher := mq.NewPublisher(mqConn, logger)
		queue = scheduler.NewDelayedQueue(publisher, kvStore, logger)
	}

	// Executors и orchestrator. PipelineExecutor регистрируется после
	// создания orchestrator'а: он же служит Launcher'ом вложенных pipeline.
	registry := executor.NewRegistry()
	registry.Register(domain.StepTypeModule, executor.NewModuleExecutor())
	registry.Register(domain.StepTypeRemote, executor.NewRemoteExecutor(nil))
	registry.Register(domain.StepTypePublishCallback, executor.NewCallbackExecutor(nil))

	promptURL := os.Getenv("PROMPT_SERVICE_URL")
	if promptURL != "" {
		registry.Register(domain.StepTypePrompt, executor.NewPromptExecutor(executor.NewHTTPPromptClient(promptURL)))
	}

	orch := orchestrator.New(orchestrator.Config{
		Queue:       queue,
		Definitions: definitionRepo,
		Registry:    registry,
		Status:      status,
		LocalMode:   localMode,
		Logger:      logger,
	})
	registry.Register(domain.StepTypePipeline, executor.NewPipelineExecutor(orch))

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Invoker:     orch,
		Status:      status,
		Definitions: definitionRepo,
		Logger:      logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
