// Package cli реализует инструмент командной строки Docpipe.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Docpipe API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления определениями pipeline и runs.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Docpipe API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	defs, err := client.ListDefinitions("clinical")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: docpipe pipeline list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - pipeline: list, publish, show, delete
//   - run: start, show, delete
//
// Каждая группа создаётся через фабричную функцию (NewPipelineCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
