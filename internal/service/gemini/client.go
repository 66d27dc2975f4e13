// Package gemini оборачивает Google Gemini API в узкий интерфейс генерации
// текста. Классификация ошибок (rate limit / недоступность модели) тоже
// живет здесь, чтобы сервис инсайтов не зависел от SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Параметры генерации, общие для всех вариантов моделей.
const (
	temperature     = 0.1
	topP            = 0.9
	topK            = 40
	maxOutputTokens = 2048
)

// Client предоставляет генерацию текста через Gemini API
type Client struct {
	client *genai.Client
}

// NewClient создает клиента Gemini API
func NewClient(ctx context.Context, conf *Config) (*Client, error) {
	if conf == nil || conf.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client}, nil
}

// Generate выполняет один запрос генерации к указанной модели и возвращает
// текст ответа.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temperature),
		TopP:            genai.Ptr[float32](topP),
		TopK:            genai.Ptr[float32](topK),
		MaxOutputTokens: maxOutputTokens,
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	return resp.Text(), nil
}

// IsRateLimit сообщает, что запрос уперся в лимит и его имеет смысл
// повторить на той же модели после паузы.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

// IsUnavailable сообщает, что модель не найдена или временно недоступна и
// нужно сразу переходить к следующему варианту.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == 404 || apiErr.Code == 503) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "Service Unavailable")
}
