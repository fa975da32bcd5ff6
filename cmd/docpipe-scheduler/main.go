// Docpipe Scheduler — публикует созревшие отложенные задачи.
//
// Retry-задачи с задержкой складываются в отсортированное множество
// в Redis; scheduler периодически обходит его и публикует задачи,
// чьё время наступило, обратно в RabbitMQ.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Docpipe/internal/kv"
	"github.com/shaiso/Docpipe/internal/mq"
	"github.com/shaiso/Docpipe/internal/scheduler"
	"github.com/shaiso/Docpipe/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("docpipe-scheduler")
	logger.Info("starting docpipe-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis — отсортированное множество отложенных задач
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

	// RabbitMQ
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

	sweeper := scheduler.NewSweeper(scheduler.SweeperConfig{
		Publisher: publisher,
		KV:        kvStore,
		Schedule:  os.Getenv("SWEEP_SCHEDULE"),
		Logger:    logger,
	})

	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
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

	// Останавливаем sweeper
	sweeper.Stop()
	logger.Info("docpipe-scheduler stopped")
}
