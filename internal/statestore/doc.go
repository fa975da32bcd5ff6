// Package statestore реализует Pipeline Status Store — разделяемое состояние
// run'ов поверх key-value хранилища.
//
// Пространство ключей (на run_id):
//   - docpipe:run:{id}:job            — hash с полем "job" (запись Job)
//   - docpipe:run:{id}:pipelines      — set идентификаторов pipeline
//   - docpipe:run:{id}:pipeline:{pid} — hash; поля "document" или номер страницы
//
// Store корректен при гонках постраничных writer'ов: запись одного поля
// самодостаточна (полный снапшот записи или узкий патч status+updated_at),
// а агрегация статусов — stateless и идемпотентна, пересчитывается с нуля
// при каждом чтении. Межключевых транзакций и блокировок нет.
//
// Жизненный цикл ключей: default TTL при создании, укороченный
// retention TTL после перехода run в терминальное состояние.
package statestore
