package executor

import "errors"

// Ошибки executor'ов.
var (
	// ErrUnknownStepType — нет executor'а для данного типа шага.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrBadStepConfig — в конфигурации шага отсутствует обязательное поле.
	ErrBadStepConfig = errors.New("bad step config")

	// ErrModuleNotFound — модуль с таким именем не зарегистрирован.
	ErrModuleNotFound = errors.New("module not found")

	// ErrHTTPRequest — HTTP-запрос завершился ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)
