package handler

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sheetlens/internal/auth"
	"sheetlens/internal/domain"
	"sheetlens/internal/ingest"
	"sheetlens/internal/service"
)

const spreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UploadResponse представляет ответ на загрузку файла
type UploadResponse struct {
	Message  string         `json:"message"`
	FileID   uuid.UUID      `json:"fileId"`
	Metadata UploadMetadata `json:"metadata"`
}

type UploadMetadata struct {
	Headers  []string `json:"headers"`
	RowCount int      `json:"rowCount"`
	FileName string   `json:"fileName"`
}

type FileHandler struct {
	fileService     *service.FileService
	activityService *service.ActivityService
}

func NewFileHandler(fileService *service.FileService, activityService *service.ActivityService) *FileHandler {
	return &FileHandler{
		fileService:     fileService,
		activityService: activityService,
	}
}

// UploadFile обрабатывает загрузку файла таблицы
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	if err := r.ParseMultipartForm(100 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("excelFile")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please upload a file")
		return
	}
	defer file.Close()

	// Отсекаем не-таблицы до чтения содержимого
	if !ingest.IsSpreadsheet(header.Filename, header.Header.Get("Content-Type")) {
		respondError(w, http.StatusBadRequest, "Only Excel files are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	result, err := h.fileService.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, userID)
	if err != nil {
		log.Printf("upload failed for user %s: %v", userID, err)
		respondServiceError(w, err)
		return
	}

	fileID := result.FileID
	h.activityService.Record(r.Context(), userID, &fileID, domain.ActivityUpload, &domain.FileRecord{
		ID:       result.FileID,
		Filename: result.Filename,
		Headers:  result.Headers,
		RowCount: result.RowCount,
	})

	respondJSON(w, http.StatusOK, UploadResponse{
		Message: "File uploaded successfully",
		FileID:  result.FileID,
		Metadata: UploadMetadata{
			Headers:  result.Headers,
			RowCount: result.RowCount,
			FileName: result.Filename,
		},
	})
}

// ListFiles возвращает файлы пользователя, новые первыми
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	files, err := h.fileService.List(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if files == nil {
		files = []domain.FileRecord{}
	}

	respondJSON(w, http.StatusOK, files)
}

// DownloadFile отдает исходные байты файла
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
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

	download, err := h.fileService.Download(r.Context(), fileID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", spreadsheetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.File.Filename))
	if _, err := w.Write(download.Data); err != nil {
		log.Printf("failed to stream file %s: %v", fileID, err)
		return
	}

	h.activityService.Record(r.Context(), userID, &fileID, domain.ActivityDownload, download.File)
}

// GetFileData заново декодирует blob в полные строки для предпросмотра
func (h *FileHandler) GetFileData(w http.ResponseWriter, r *http.Request) {
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

	file, table, err := h.fileService.FetchRows(r.Context(), fileID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.activityService.Record(r.Context(), userID, &fileID, domain.ActivityView, file)

	respondJSON(w, http.StatusOK, domain.FileData{
		Filename: file.Filename,
		Rows:     table.Rows,
	})
}
