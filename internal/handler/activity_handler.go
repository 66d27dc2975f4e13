package handler

import (
	"net/http"
	"strconv"

	"sheetlens/internal/auth"
	"sheetlens/internal/service"
)

type cleanupResponse struct {
	Message           string `json:"message"`
	DuplicatesRemoved int    `json:"duplicatesRemoved"`
}

type ActivityHandler struct {
	activityService *service.ActivityService
}

func NewActivityHandler(activityService *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

// GetRecentActivity возвращает последние события пользователя
func (h *ActivityHandler) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.activityService.RecentActivity(r.Context(), userID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// GetDashboardStats возвращает сводку для дашборда
func (h *ActivityHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	stats, err := h.activityService.DashboardStats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetPopularFile возвращает файл с наибольшим числом обращений
func (h *ActivityHandler) GetPopularFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	popular, err := h.activityService.MostPopularFile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, popular)
}

// CleanupActivity удаляет дубликаты событий одного дня
func (h *ActivityHandler) CleanupActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	removed, err := h.activityService.CleanupDuplicates(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cleanupResponse{
		Message:           "Activity cleanup completed",
		DuplicatesRemoved: removed,
	})
}
