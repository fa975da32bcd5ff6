package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики пайплайнов. Регистрируются в default registry и отдаются
// каждым сервисом через /metrics.
var (
	// TasksExecuted — выполненные шаги по типу и исходу.
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpipe_tasks_executed_total",
		Help: "Total executed pipeline tasks by step type and outcome.",
	}, []string{"type", "outcome"})

	// RetriesScheduled — запланированные повторные попытки.
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpipe_retries_scheduled_total",
		Help: "Total scheduled task retries.",
	})

	// PipelinesFailed — pipeline'ы, помеченные FAILED.
	PipelinesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docpipe_pipelines_failed_total",
		Help: "Total pipelines marked FAILED after retry exhaustion.",
	})

	// NotificationsDelivered — доставленные webhook-уведомления.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docpipe_notifications_delivered_total",
		Help: "Total delivered completion webhooks by operation type.",
	}, []string{"operation_type"})
)
