package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sheetlens/internal/auth"
	"sheetlens/internal/domain"
	"sheetlens/internal/service"
)

type insightRequest struct {
	QuestionPrompt string `json:"questionPrompt"`
}

type InsightHandler struct {
	fileService     *service.FileService
	insightService  *service.InsightService
	activityService *service.ActivityService
}

func NewInsightHandler(
	fileService *service.FileService,
	insightService *service.InsightService,
	activityService *service.ActivityService,
) *InsightHandler {
	return &InsightHandler{
		fileService:     fileService,
		insightService:  insightService,
		activityService: activityService,
	}
}

// GetInsights строит анализ данных файла: статистику колонок и текст от
// внешней генерации либо детерминированную сводку при ее недоступности.
func (h *InsightHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid file id")
		return
	}

	var req insightRequest
	if r.Body != nil {
		// Тело опционально: без вопроса выполняется полный анализ
		json.NewDecoder(r.Body).Decode(&req)
	}

	file, table, err := h.fileService.FetchRows(r.Context(), fileID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := h.insightService.Analyze(r.Context(), table.Rows, table.Headers, req.QuestionPrompt)
	if err != nil {
		// Ошибок генерации тут не бывает: только пустые данные или
		// отмена запроса
		respondServiceError(w, err)
		return
	}

	// Событие пишется только после получения результата и никогда для
	// отсеянного бессодержательного вопроса
	if !result.IsGenericResponse {
		activityType := domain.ActivityAnalysis
		if req.QuestionPrompt != "" {
			activityType = domain.ActivityInsight
		}
		h.activityService.Record(r.Context(), userID, &fileID, activityType, file)
	}

	respondJSON(w, http.StatusOK, domain.InsightResponse{
		FileName:          file.Filename,
		Insights:          result.Insights,
		ColumnStats:       result.ColumnStats,
		AnalysisDate:      time.Now().UTC(),
		IsGenericResponse: result.IsGenericResponse,
		IsError:           result.IsError,
	})
}
