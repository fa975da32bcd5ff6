// Package domain содержит общие контракты данных Docpipe.
//
// Основные типы:
//   - PipelineDefinition / TaskStep — статическое описание pipeline
//     (плоский упорядоченный список шагов, без ветвлений)
//   - TaskParameters — единица работы, передаваемая между шагами
//   - TaskResults — результат выполнения одного шага
//   - ResultContext — иерархическая карта результатов (scope → pipeline → task)
//   - Pipeline / Job — записи Pipeline Status Store
//
// Типы домена не зависят от транспорта и хранилищ — только encoding/json теги.
package domain
