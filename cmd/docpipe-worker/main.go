// Docpipe Worker — выполняет шаги pipeline из очередей.
//
// Worker:
//   - Потребляет задачи из RabbitMQ
//   - Выполняет шаг через зарегистрированный executor
//   - Решает следующий шаг и ставит его в очередь
//   - Пишет статусы в Pipeline Status Store
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

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
	"github.com/shaiso/Docpipe/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("docpipe-worker")
	logger.Info("starting docpipe-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	definitionRepo := repo.NewDefinitionRepo(pool)

	// Redis — Pipeline Status Store и отложенные задачи
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

	// RabbitMQ. Worker без очереди бессмыслен — недоступность фатальна.
	mqConn, err := mq.NewConnection(mq.ConnConfig{
		URL:    os.Getenv("RABBITMQ_URL"),
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	publisher := mq.NewPublisher(mqConn, logger)
	queue := scheduler.NewDelayedQueue(publisher, kvStore, logger)

	// Executors и orchestrator
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
		Logger:      logger,
	})
	registry.Register(domain.StepTypePipeline, executor.NewPipelineExecutor(orch))

	// Очереди для потребления: WORKER_QUEUES=tasks.default,tasks.gpu
	var queues []string
	if v := os.Getenv("WORKER_QUEUES"); v != "" {
		queues = strings.Split(v, ",")
		for _, q := range queues {
			if err := mq.EnsureTaskQueue(ctx, mqConn, q); err != nil {
				logger.Error("failed to declare queue", "queue", q, "error", err)
				os.Exit(1)
			}
		}
	}

	// Создаём worker
	w := worker.New(worker.Config{
		Runner: orch,
		Conn:   mqConn,
		Queues: queues,
		Logger: logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("docpipe-worker stopped")
}
