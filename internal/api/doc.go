// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (оркестратор, status store, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - run_handler.go        — обработчики для /runs
//   - definition_handler.go — обработчики для /pipelines
//
// API предоставляет REST endpoints для запуска run'ов, чтения их
// агрегированного статуса и управления определениями pipeline.
package api
