package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"sheetlens/internal/domain"
)

type errorResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Message: message})
}

// respondServiceError переводит ошибки ядра в HTTP-статусы. Наружу уходит
// структурированное сообщение, а не голая ошибка.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDecode):
		respondError(w, http.StatusBadRequest, "Cannot parse file as tabular data")
	case errors.Is(err, domain.ErrNoData):
		respondError(w, http.StatusBadRequest, "File has no data rows to analyze")
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "File not found")
	default:
		respondError(w, http.StatusInternalServerError, "Server error")
	}
}
