package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output рендерит ответы Docpipe API: таблицы для человека,
// JSON для скриптов (--json). Каждому типу ответа — свой renderer,
// чтобы колонки и детали (причина FAILED) задавались в одном месте.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Definitions выводит список определений pipeline.
func (o *Output) Definitions(defs []DefinitionResponse) {
	if o.jsonMode {
		o.printJSON(defs)
		return
	}

	rows := make([][]string, len(defs))
	for i, d := range defs {
		rows[i] = []string{d.Scope, d.Key, strconv.Itoa(d.Version), strconv.Itoa(len(d.Tasks))}
	}
	o.table([]string{"SCOPE", "KEY", "VERSION", "TASKS"}, rows)
}

// Definition выводит одно определение: шапка scope/key/version и шаги.
func (o *Output) Definition(def *DefinitionResponse) {
	if o.jsonMode {
		o.printJSON(def)
		return
	}

	o.Success(fmt.Sprintf("%s/%s version %d", def.Scope, def.Key, def.Version))

	rows := make([][]string, len(def.Tasks))
	for i, t := range def.Tasks {
		rows[i] = []string{t.ID, t.Type, t.Queue, t.EntitySchema}
	}
	o.table([]string{"TASK_ID", "TYPE", "QUEUE", "ENTITY_SCHEMA"}, rows)
}

// RunStarted выводит подтверждение запуска run.
func (o *Output) RunStarted(started *RunStartedResponse) {
	if o.jsonMode {
		o.printJSON(started)
		return
	}

	o.Success("Run started: " + started.RunID)
	o.table(
		[]string{"RUN_ID", "SCOPE", "PIPELINE", "FIRST_TASK"},
		[][]string{{started.RunID, started.Scope, started.PipelineKey, started.FirstTaskID}},
	)
}

// RunStatus выводит агрегированный статус run. Для FAILED pipeline
// колонка DETAIL показывает причину из metadata записи.
func (o *Output) RunStatus(status *RunStatusResponse) {
	if o.jsonMode {
		o.printJSON(status)
		return
	}

	o.Success(fmt.Sprintf("Run %s: %s (%.1fs elapsed)",
		status.RunID, status.Status, status.ElapsedSeconds))

	rows := make([][]string, len(status.Pipelines))
	for i, p := range status.Pipelines {
		rows[i] = []string{
			p.PipelineID, p.Status,
			strconv.Itoa(p.Order), strconv.FormatBool(p.PageLevel),
			failureDetail(p.Metadata),
		}
	}
	o.table([]string{"PIPELINE_ID", "STATUS", "ORDER", "PAGE_LEVEL", "DETAIL"}, rows)
}

// failureDetail извлекает человекочитаемую причину провала из metadata
// FAILED pipeline. Для остальных статусов metadata пустая.
func failureDetail(metadata map[string]any) string {
	reason, _ := metadata["failure_reason"].(string)
	task, _ := metadata["failed_task"].(string)

	switch {
	case reason != "" && task != "":
		return task + ": " + reason
	case reason != "":
		return reason
	default:
		return "-"
	}
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// table выводит строки через tabwriter с заголовком и разделителем.
func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

func (o *Output) printJSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
