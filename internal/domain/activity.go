package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы действий пользователя над файлами.
const (
	ActivityUpload   = "upload"
	ActivityDownload = "download"
	ActivityView     = "view"
	ActivityAnalysis = "analysis"
	ActivityInsight  = "insight"
)

// ActivityEvent - неизменяемая запись о действии пользователя.
// События пишутся best-effort: потеря события не влияет на файлы и blob-ы.
type ActivityEvent struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	FileID       *uuid.UUID `json:"file_id,omitempty" db:"file_id"`
	ActivityType string     `json:"activity_type" db:"activity_type"`
	Timestamp    time.Time  `json:"timestamp" db:"timestamp"`
	// Снимок файла на момент события
	Filename    string `json:"filename,omitempty" db:"file_name"`
	RowCount    int    `json:"row_count,omitempty" db:"file_row_count"`
	ColumnCount int    `json:"column_count,omitempty" db:"file_column_count"`
}

// DashboardStats - сводка для дашборда пользователя.
// recentUploads/recentViews считаются по реальным событиям за последние 7 дней.
type DashboardStats struct {
	TotalFiles    int `json:"totalFiles"`
	TotalRows     int `json:"totalRows"`
	RecentUploads int `json:"recentUploads"`
	RecentViews   int `json:"recentViews"`
}

// PopularFile - файл с наибольшим числом обращений (view/analysis/insight).
type PopularFile struct {
	Filename    string     `json:"filename"`
	FileID      *uuid.UUID `json:"fileId,omitempty"`
	AccessCount int        `json:"accessCount"`
	None        bool       `json:"none,omitempty"`
}
