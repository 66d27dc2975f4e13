package domain

import "time"

// Типы колонок, определяемые по доле числовых значений.
const (
	ColumnNumeric     = "numeric"
	ColumnCategorical = "categorical"
)

// ColumnStatistics - описательная статистика одной колонки. Вычисляется
// заново на каждый запрос инсайтов и нигде не сохраняется.
type ColumnStatistics struct {
	Type             string   `json:"type"`
	UniqueValues     int      `json:"uniqueValues"`
	HasMissingValues bool     `json:"hasMissingValues"`
	SampleValues     []string `json:"sampleValues"`
	// Заполняются только для числовых колонок
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Avg    *float64 `json:"avg,omitempty"`
	Median *float64 `json:"median,omitempty"`
	Q1     *float64 `json:"q1,omitempty"`
	Q3     *float64 `json:"q3,omitempty"`
}

// InsightResult - итог анализа. Вызывающая сторона всегда получает
// пригодный к показу текст: при исчерпании попыток генерации поле Insights
// содержит детерминированную сводку по статистике, а IsError = true.
type InsightResult struct {
	Insights          string                      `json:"insights"`
	ColumnStats       map[string]ColumnStatistics `json:"columnStats,omitempty"`
	ModelUsed         string                      `json:"modelUsed,omitempty"`
	IsGenericResponse bool                        `json:"isGenericResponse,omitempty"`
	IsError           bool                        `json:"isError,omitempty"`
}

// InsightResponse - ответ HTTP-слоя на запрос инсайтов.
type InsightResponse struct {
	FileName          string                      `json:"fileName"`
	Insights          string                      `json:"insights"`
	ColumnStats       map[string]ColumnStatistics `json:"columnStats,omitempty"`
	AnalysisDate      time.Time                   `json:"analysisDate"`
	IsGenericResponse bool                        `json:"isGenericResponse,omitempty"`
	IsError           bool                        `json:"isError,omitempty"`
}
