package telemetry

import (
	"log/slog"
	"os"
	"strings"

	"github.com/shaiso/Docpipe/internal/domain"
)

// SetupLogger инициализирует глобальный логгер сервиса.
//
// Каждая запись несёт атрибут service — в Docpipe четыре бинарника
// пишут в общий лог-поток, без этого атрибута их не различить.
//
// Переменные окружения:
//   - LOG_LEVEL: debug | info | warn | error (default: info)
//   - LOG_FORMAT: json (default) | text
func SetupLogger(service string) *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}

// TaskLogger возвращает логгер с атрибутами задачи: run, pipeline, шаг
// и номер страницы для постраничных задач. Один вызов вместо повторения
// кортежа в каждой записи жизненного цикла шага.
func TaskLogger(base *slog.Logger, params *domain.TaskParameters) *slog.Logger {
	logger := base.With(
		"run_id", params.RunID,
		"pipeline_id", params.PipelineID(),
		"task_id", params.TaskConfig.ID,
	)
	if params.PageNumber != nil {
		logger = logger.With("page_number", *params.PageNumber)
	}
	return logger
}
