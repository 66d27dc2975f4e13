package domain

import "errors"

// Ошибки ядра. Хендлеры транслируют их в HTTP-статусы:
// ErrDecode/ErrNoData -> 400, ErrNotFound -> 404, ErrStorage -> 500.
var (
	ErrDecode   = errors.New("cannot decode spreadsheet data")
	ErrNotFound = errors.New("file not found")
	ErrNoData   = errors.New("no data rows to analyze")
	ErrStorage  = errors.New("storage operation failed")
)
