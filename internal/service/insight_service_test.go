package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sheetlens/internal/domain"
)

// fakeGenerator отдает заранее заданные ответы по одному на вызов.
type fakeGenerator struct {
	responses []fakeResponse
	calls     []string // модели в порядке обращения
}

type fakeResponse struct {
	text string
	err  error
}

func (g *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.calls = append(g.calls, model)
	if len(g.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	r := g.responses[0]
	g.responses = g.responses[1:]
	return r.text, r.err
}

func newTestInsightService(g Generator) *InsightService {
	s := NewInsightService(g)
	s.backoffBase = time.Microsecond
	return s
}

var longAnswer = strings.Repeat("Insightful analysis. ", 10)

func sampleRows() []map[string]string {
	return []map[string]string{
		{"a": "1", "b": "x"},
		{"a": "2", "b": "y"},
		{"a": "3", "b": "z"},
	}
}

func TestAnalyzeEmptyRows(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestInsightService(g)

	_, err := s.Analyze(context.Background(), nil, []string{"a"}, "")
	require.ErrorIs(t, err, domain.ErrNoData)
	require.Empty(t, g.calls, "генерация не должна вызываться для пустых данных")
}

func TestAnalyzeVagueQuestionShortCircuit(t *testing.T) {
	for _, q := range []string{"hi", "Hello", "test", "hey", "abc", "qwert"} {
		t.Run(q, func(t *testing.T) {
			g := &fakeGenerator{}
			s := newTestInsightService(g)

			result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, q)
			require.NoError(t, err)
			require.True(t, result.IsGenericResponse)
			require.Contains(t, result.Insights, "I Need More Information")
			// Примеры вопросов строятся из реальных колонок
			require.Contains(t, result.Insights, "a and b")
			require.Empty(t, g.calls, "внешняя генерация не должна вызываться")
		})
	}
}

func TestAnalyzeMeaningfulQuestionReachesGenerator(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{{text: longAnswer}}}
	s := newTestInsightService(g)

	result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, "what is the average of column a?")
	require.NoError(t, err)
	require.False(t, result.IsGenericResponse)
	require.False(t, result.IsError)
	require.Equal(t, longAnswer, result.Insights)
	require.Equal(t, "gemini-2.5-pro", result.ModelUsed)
	require.Len(t, g.calls, 1)
}

func TestAnalyzeColumnStats(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{{text: longAnswer}}}
	s := newTestInsightService(g)

	result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, "")
	require.NoError(t, err)

	a := result.ColumnStats["a"]
	require.Equal(t, domain.ColumnNumeric, a.Type)
	require.Equal(t, 1.0, *a.Min)
	require.Equal(t, 3.0, *a.Max)
	require.Equal(t, 2.0, *a.Avg)
	require.Equal(t, 2.0, *a.Median)

	b := result.ColumnStats["b"]
	require.Equal(t, domain.ColumnCategorical, b.Type)
	require.Equal(t, 3, b.UniqueValues)
	require.Nil(t, b.Min)
}

// min <= q1 <= median <= q3 <= max для любой непустой числовой колонки.
func TestColumnStatsQuartileOrdering(t *testing.T) {
	rows := []map[string]string{}
	for _, v := range []string{"7", "3", "9", "1", "5", "2", "8", "4", "6", "10", "0"} {
		rows = append(rows, map[string]string{"n": v})
	}

	stats := ComputeColumnStats(rows, []string{"n"})
	n := stats["n"]

	require.Equal(t, domain.ColumnNumeric, n.Type)
	require.LessOrEqual(t, *n.Min, *n.Q1)
	require.LessOrEqual(t, *n.Q1, *n.Median)
	require.LessOrEqual(t, *n.Median, *n.Q3)
	require.LessOrEqual(t, *n.Q3, *n.Max)
}

func TestColumnStatsMissingValues(t *testing.T) {
	rows := []map[string]string{
		{"c": "red"},
		{"c": ""},
		{"c": "red"},
		{"c": "blue"},
	}

	stats := ComputeColumnStats(rows, []string{"c"})
	c := stats["c"]

	require.Equal(t, domain.ColumnCategorical, c.Type)
	require.True(t, c.HasMissingValues)
	// red, "", blue
	require.Equal(t, 3, c.UniqueValues)
	require.LessOrEqual(t, len(c.SampleValues), 5)
}

// Колонка числовая, только если числом разбирается больше половины значений.
func TestColumnStatsTypeThreshold(t *testing.T) {
	rows := []map[string]string{
		{"m": "1"},
		{"m": "2"},
		{"m": "oops"},
		{"m": "nope"},
	}

	stats := ComputeColumnStats(rows, []string{"m"})
	require.Equal(t, domain.ColumnCategorical, stats["m"].Type)

	rows = append(rows, map[string]string{"m": "3"})
	stats = ComputeColumnStats(rows, []string{"m"})
	require.Equal(t, domain.ColumnNumeric, stats["m"].Type)
}

// Ответ короче 100 символов бракуется, следующая модель получает шанс.
func TestGenerateRejectsShortResponse(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{
		{text: "too short"},
		{text: longAnswer},
	}}
	s := newTestInsightService(g)

	result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, "")
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "gemini-2.5-flash", result.ModelUsed)
	require.Equal(t, []string{"gemini-2.5-pro", "gemini-2.5-flash"}, g.calls)
}

// Rate limit повторяется на той же модели, недоступность двигает дальше.
func TestGenerateRetryPolicy(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{
		{err: errors.New("429 Too Many Requests")},
		{err: errors.New("status 503 Service Unavailable")},
		{text: longAnswer},
	}}
	s := newTestInsightService(g)

	result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, "")
	require.NoError(t, err)
	require.Equal(t, "gemini-2.5-flash", result.ModelUsed)
	// 429 -> та же модель, 503 -> следующая
	require.Equal(t, []string{"gemini-2.5-pro", "gemini-2.5-pro", "gemini-2.5-flash"}, g.calls)
}

// После исчерпания всех циклов возвращается сводка по статистике с IsError,
// а не ошибка.
func TestAnalyzeFallbackAfterExhaustion(t *testing.T) {
	g := &fakeGenerator{} // каждый вызов возвращает ошибку
	s := newTestInsightService(g)

	result, err := s.Analyze(context.Background(), sampleRows(), []string{"a", "b"}, "")
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, result.Insights, "Data Analysis Summary")
	require.Contains(t, result.Insights, "Range: 1 to 3")
	require.Contains(t, result.Insights, "3 unique values")
	require.NotNil(t, result.ColumnStats)

	// 3 цикла по всем вариантам моделей
	require.Len(t, g.calls, 3*len(defaultModels))
}

func TestAnalyzeContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &fakeGenerator{responses: []fakeResponse{{err: ctx.Err()}}}
	s := newTestInsightService(g)

	_, err := s.Analyze(ctx, sampleRows(), []string{"a"}, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildPromptContents(t *testing.T) {
	rows := sampleRows()
	stats := ComputeColumnStats(rows, []string{"a", "b"})

	prompt := buildPrompt(rows, []string{"a", "b"}, stats, "how do a and b relate?")
	require.Contains(t, prompt, "Total records: 3")
	require.Contains(t, prompt, "Columns: a, b")
	require.Contains(t, prompt, `User Question: "how do a and b relate?"`)
	require.Contains(t, prompt, "markdown formatting")

	general := buildPrompt(rows, []string{"a", "b"}, stats, "")
	require.Contains(t, general, "Provide a general analysis of this dataset.")
	require.NotContains(t, general, "User Question")
}

// В выборку запроса попадает не больше 15 строк.
func TestBuildPromptSampleCap(t *testing.T) {
	rows := make([]map[string]string, 100)
	for i := range rows {
		rows[i] = map[string]string{"v": "row-marker"}
	}
	stats := ComputeColumnStats(rows, []string{"v"})

	prompt := buildPrompt(rows, []string{"v"}, stats, "")
	// 15 строк в выборке плюс одно вхождение в sampleValues статистики
	require.Equal(t, promptSampleRows+1, strings.Count(prompt, "row-marker"))
}
