package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"sheetlens/internal/domain"
	"sheetlens/internal/service/gemini"
)

const (
	// Ответы короче порога считаются обрывками и уходят в повтор
	minResponseLength = 100
	// Количество полных проходов по списку моделей
	maxRetryCycles = 3
	// Количество повторов на одной модели при rate limit
	maxRateLimitRetries = 3
	// Сколько строк попадает в текст запроса
	promptSampleRows = 15
	// Сколько различных значений показываем в статистике колонки
	maxSampleValues = 5
)

// Варианты моделей от самой способной к самой простой.
var defaultModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-1.0-pro",
}

var vagueStoplist = map[string]bool{
	"hello": true,
	"hi":    true,
	"test":  true,
	"hey":   true,
}

// Короткая последовательность букв - похоже на случайный набор
var shortLettersRe = regexp.MustCompile(`^[a-zA-Z]{1,5}$`)

var errGenerationExhausted = errors.New("all generation attempts exhausted")

// Generator - внешняя способность генерации текста по запросу.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// InsightService вычисляет статистику колонок и строит текстовый анализ
// данных через внешнюю генерацию с лестницей повторов и детерминированным
// запасным ответом.
type InsightService struct {
	generator   Generator
	models      []string
	backoffBase time.Duration
}

func NewInsightService(generator Generator) *InsightService {
	return &InsightService{
		generator:   generator,
		models:      defaultModels,
		backoffBase: time.Second,
	}
}

// Analyze строит инсайты по материализованным строкам. Пустой набор строк -
// ошибка ErrNoData до каких-либо попыток генерации. При исчерпании попыток
// возвращается сводка по статистике с флагом IsError, но не ошибка:
// вызывающая сторона всегда получает пригодный к показу текст.
func (s *InsightService) Analyze(ctx context.Context, rows []map[string]string, columns []string, questionPrompt string) (*domain.InsightResult, error) {
	if len(rows) == 0 {
		return nil, domain.ErrNoData
	}

	// Слишком короткий или бессодержательный вопрос не доходит до
	// внешней генерации
	if questionPrompt != "" && isVagueQuestion(questionPrompt) {
		return &domain.InsightResult{
			Insights:          genericGuidance(questionPrompt, columns),
			IsGenericResponse: true,
		}, nil
	}

	stats := ComputeColumnStats(rows, columns)
	prompt := buildPrompt(rows, columns, stats, questionPrompt)

	text, model, err := s.generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Printf("insight generation failed, falling back to statistics: %v", err)
		return &domain.InsightResult{
			Insights:    fallbackSummary(columns, stats),
			ColumnStats: stats,
			IsError:     true,
		}, nil
	}

	return &domain.InsightResult{
		Insights:    text,
		ColumnStats: stats,
		ModelUsed:   model,
	}, nil
}

// generate пробует варианты моделей по порядку. Политика на класс ошибки:
// rate limit - пауза с удвоением и та же модель; модель не найдена или
// недоступна - сразу следующий вариант; прочее - следующий вариант. После
// прохода по всем вариантам - пауза и новый цикл, всего циклов maxRetryCycles.
func (s *InsightService) generate(ctx context.Context, prompt string) (string, string, error) {
	var lastErr error

	for cycle := 0; cycle < maxRetryCycles; cycle++ {
		if cycle > 0 {
			if err := s.sleep(ctx, cycle); err != nil {
				return "", "", err
			}
		}

		for i := 0; i < len(s.models); i++ {
			model := s.models[i]

			for rateRetries := 0; ; {
				text, err := s.generator.Generate(ctx, model, prompt)
				if err == nil && len(text) >= minResponseLength {
					return text, model, nil
				}
				if err == nil {
					// Обрывочный ответ - пробуем следующую модель
					lastErr = fmt.Errorf("model %s returned degenerate response (%d chars)", model, len(text))
					break
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", "", err
				}

				lastErr = err
				if gemini.IsUnavailable(err) {
					log.Printf("model %s unavailable, advancing to next variant", model)
				} else {
					log.Printf("generation error with model %s: %v", model, err)
				}

				// Недоступная модель и прочие ошибки - сразу следующий
				// вариант; rate limit повторяем на той же модели с паузой
				if !gemini.IsRateLimit(err) || rateRetries >= maxRateLimitRetries {
					break
				}
				if err := s.sleep(ctx, rateRetries); err != nil {
					return "", "", err
				}
				rateRetries++
			}
		}
	}

	return "", "", fmt.Errorf("%w: %v", errGenerationExhausted, lastErr)
}

// sleep ждет backoffBase * 2^attempt или отмену контекста.
func (s *InsightService) sleep(ctx context.Context, attempt int) error {
	delay := s.backoffBase * (1 << attempt)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isVagueQuestion(q string) bool {
	trimmed := strings.TrimSpace(q)
	if len(trimmed) < 5 {
		return true
	}
	if vagueStoplist[strings.ToLower(trimmed)] {
		return true
	}
	return shortLettersRe.MatchString(trimmed)
}

// ComputeColumnStats считает описательную статистику каждой колонки.
// Колонка числовая, если числом разбирается больше половины значений;
// квартили берутся по индексам floor(n/4), floor(n/2), floor(3n/4)
// отсортированного набора, без интерполяции.
func ComputeColumnStats(rows []map[string]string, columns []string) map[string]domain.ColumnStatistics {
	stats := make(map[string]domain.ColumnStatistics, len(columns))

	for _, column := range columns {
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[column])
		}

		var numeric []float64
		hasMissing := false
		seen := make(map[string]bool)
		var samples []string

		for _, v := range values {
			if v == "" {
				hasMissing = true
			}
			if !seen[v] {
				seen[v] = true
				if len(samples) < maxSampleValues {
					samples = append(samples, v)
				}
			}
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				numeric = append(numeric, n)
			}
		}

		cs := domain.ColumnStatistics{
			Type:             domain.ColumnCategorical,
			UniqueValues:     len(seen),
			HasMissingValues: hasMissing,
			SampleValues:     samples,
		}

		if len(values) > 0 && 2*len(numeric) > len(values) {
			cs.Type = domain.ColumnNumeric
		}

		if cs.Type == domain.ColumnNumeric && len(numeric) > 0 {
			min, max, sum := numeric[0], numeric[0], 0.0
			for _, n := range numeric {
				if n < min {
					min = n
				}
				if n > max {
					max = n
				}
				sum += n
			}
			avg := sum / float64(len(numeric))

			sorted := make([]float64, len(numeric))
			copy(sorted, numeric)
			sort.Float64s(sorted)

			n := len(sorted)
			median := sorted[n/2]
			q1 := sorted[n/4]
			q3 := sorted[3*n/4]

			cs.Min = &min
			cs.Max = &max
			cs.Avg = &avg
			cs.Median = &median
			cs.Q1 = &q1
			cs.Q3 = &q3
		}

		stats[column] = cs
	}

	return stats
}

// buildPrompt собирает текст запроса: сводка набора данных, ограниченная
// выборка строк, статистика колонок, вопрос пользователя или инструкция
// полного анализа и требования к форматированию ответа.
func buildPrompt(rows []map[string]string, columns []string, stats map[string]domain.ColumnStatistics, questionPrompt string) string {
	sampleSize := len(rows)
	if sampleSize > promptSampleRows {
		sampleSize = promptSampleRows
	}
	sampleJSON, _ := json.Marshal(rows[:sampleSize])
	statsJSON, _ := json.MarshalIndent(stats, "", "  ")

	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert data analyst. Analyze this dataset thoroughly:

Dataset Summary:
- Total records: %d
- Columns: %s
- Sample: %s

Column Statistics:
%s`, len(rows), strings.Join(columns, ", "), sampleJSON, statsJSON)

	if questionPrompt != "" {
		fmt.Fprintf(&b, `

User Question: %q

Provide a focused answer to this specific question. Keep your response proportionate to the complexity of the question:
1. For simple computational questions (sums, averages, etc.), give a direct answer with minimal explanation.
2. For more complex analytical questions, provide appropriate detail and context.`, questionPrompt)
	} else {
		b.WriteString("\n\nProvide a general analysis of this dataset.")
	}

	b.WriteString(`

Format guidelines:
- Use markdown formatting for readability
- Be concise but thorough
- Match the depth of your analysis to the complexity of the question
- For simple questions, give simple answers
- For complex questions, show your work and reasoning
- Avoid unnecessary verbosity
- Include only relevant details for the specific question asked

Use this consistent formatting for your response:
1. Use "# Data Analysis Insights: [Topic]" as the main title
2. Use "## [Section Name]" for main sections
3. Use "### [Subsection]" for subsections
4. Use bold text for key terms and findings
5. Use consistent green color headings throughout
6. Maintain the same heading size and style throughout the entire response`)

	return b.String()
}

// genericGuidance - ранний ответ на бессодержательный вопрос. Примеры
// вопросов строятся из реальных имен колонок; внешняя генерация не
// вызывается.
func genericGuidance(questionPrompt string, columns []string) string {
	firstColumn := ""
	if len(columns) > 0 {
		firstColumn = columns[0]
	}
	firstTwo := firstColumn
	if len(columns) > 1 {
		firstTwo = columns[0] + " and " + columns[1]
	}

	return fmt.Sprintf(`# I Need More Information

It looks like your query %q is too brief or general for me to provide meaningful insights about your data.

## How to Get Better Insights:

1. **Ask specific questions** about your data, such as:
   - "What's the relationship between age and purchase amount?"
   - "Which products have the highest profit margin?"
   - "Show me trends in customer behavior over time"

2. **Mention specific columns** in your question to get more relevant analysis.

3. **Try these example questions**:
   - "What are the key patterns in my %s data?"
   - "Compare the differences between %s"
   - "Find any outliers or anomalies in the dataset"

Or simply click "Analyze with AI" for a comprehensive analysis of your entire dataset.`, questionPrompt, firstColumn, firstTwo)
}

// fallbackSummary строит детерминированную текстовую сводку из статистики,
// когда генерация недоступна.
func fallbackSummary(columns []string, stats map[string]domain.ColumnStatistics) string {
	var b strings.Builder

	b.WriteString(`# Data Analysis Summary

## Unable to Generate AI Analysis

I apologize, but I couldn't generate an AI analysis of your data at this time.

### Basic Statistics Instead:
`)

	for _, column := range columns {
		cs, ok := stats[column]
		if !ok {
			continue
		}
		if cs.Type == domain.ColumnNumeric && cs.Min != nil {
			fmt.Fprintf(&b, "\n- **%s**: Range: %g to %g, Average: %.2f\n", column, *cs.Min, *cs.Max, *cs.Avg)
		} else {
			fmt.Fprintf(&b, "\n- **%s**: %d unique values\n", column, cs.UniqueValues)
		}
	}

	b.WriteString(`
### Try Again Later

The AI service is currently experiencing high demand. Please try your analysis again in a few minutes.`)

	return b.String()
}
