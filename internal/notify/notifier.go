// Package notify доставляет webhook-уведомления о старте и завершении run.
//
// Доставка — fire-and-forget: вызывающая сторона логирует ошибки,
// но никогда не прерывает из-за них жизненный цикл task'а.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Docpipe/internal/domain"
	"github.com/shaiso/Docpipe/internal/telemetry"
)

// defaultTimeout — таймаут HTTP-запроса по умолчанию.
const defaultTimeout = 10 * time.Second

// Event — полезная нагрузка уведомления.
type Event struct {
	AppID          string                    `json:"app_id"`
	TenantID       string                    `json:"tenant_id"`
	PatientID      string                    `json:"patient_id"`
	DocumentID     string                    `json:"document_id"`
	RunID          string                    `json:"run_id"`
	Status         domain.Status             `json:"status"`
	ElapsedSeconds float64                   `json:"elapsed_time"`
	Pipelines      []domain.PipelineListItem `json:"pipelines,omitempty"`
}

// Notifier отправляет уведомления на operation-type-specific endpoint.
//
// Доставка ограничена allow-list'ом типов операций
// (domain.OperationType.DeliversCallback): потребитель callback'ов понимает
// только документ-ориентированные операции извлечения.
type Notifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config — конфигурация Notifier.
type Config struct {
	// BaseURL — базовый URL получателя. Пустое значение отключает доставку.
	BaseURL string

	// Timeout — таймаут HTTP-запроса (default: 10s).
	Timeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Notify отправляет уведомление для указанного типа операции.
//
// Операции вне allow-list'а подавляются без ошибки. Возвращаемая ошибка
// предназначена только для логирования вызывающей стороной.
func (n *Notifier) Notify(ctx context.Context, op domain.OperationType, event *Event) error {
	if !op.DeliversCallback() {
		n.logger.Debug("notification suppressed for operation type",
			"operation_type", op,
			"run_id", event.RunID,
		)
		return nil
	}

	if n.baseURL == "" {
		n.logger.Debug("notifier disabled, skipping delivery", "run_id", event.RunID)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/callbacks/%s", n.baseURL, op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}

	telemetry.NotificationsDelivered.WithLabelValues(string(op)).Inc()

	n.logger.Debug("notification delivered",
		"run_id", event.RunID,
		"status", event.Status,
		"operation_type", op,
	)
	return nil
}
