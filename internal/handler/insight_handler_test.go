package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"sheetlens/internal/auth"
	"sheetlens/internal/domain"
	"sheetlens/internal/service"
	"sheetlens/internal/service/s3"
)

const testJWTSecret = "handler-test-secret"

func bearerToken(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": userID})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	return "Bearer " + signed
}

// memFileStore держит единственную запись файла.
type memFileStore struct {
	file *domain.FileRecord
}

func (s *memFileStore) Create(ctx context.Context, f *domain.FileRecord) error {
	clone := *f
	s.file = &clone
	return nil
}

func (s *memFileStore) Update(ctx context.Context, f *domain.FileRecord) error {
	clone := *f
	s.file = &clone
	return nil
}

func (s *memFileStore) GetOwned(ctx context.Context, id uuid.UUID, ownerID string) (*domain.FileRecord, error) {
	if s.file == nil || s.file.ID != id || s.file.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	clone := *s.file
	return &clone, nil
}

func (s *memFileStore) GetByOwnerAndName(ctx context.Context, ownerID, filename string) (*domain.FileRecord, error) {
	return nil, nil
}

func (s *memFileStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	return nil, nil
}

type memBlobStore struct {
	data map[string][]byte
}

func (s *memBlobStore) UploadBytes(ctx context.Context, key string, data []byte) error {
	s.data[key] = data
	return nil
}

func (s *memBlobStore) GetObject(ctx context.Context, key string) (s3.S3Object, error) {
	d, ok := s.data[key]
	if !ok {
		return nil, s3.ErrObjectNotFound
	}
	return &memBlobObject{ReadCloser: io.NopCloser(bytes.NewReader(d)), length: int64(len(d))}, nil
}

func (s *memBlobStore) DeleteObject(ctx context.Context, key string) error {
	delete(s.data, key)
	return nil
}

type memBlobObject struct {
	io.ReadCloser
	length int64
}

func (o *memBlobObject) ContentLength() int64 { return o.length }
func (o *memBlobObject) ContentType() string  { return "text/csv" }

type memActivityStore struct {
	events []domain.ActivityEvent
}

func (s *memActivityStore) Insert(ctx context.Context, e *domain.ActivityEvent) error {
	s.events = append(s.events, *e)
	return nil
}

func (s *memActivityStore) RecentByUser(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error) {
	return s.events, nil
}

func (s *memActivityStore) ListByUser(ctx context.Context, userID string) ([]domain.ActivityEvent, error) {
	return s.events, nil
}

func (s *memActivityStore) CountByTypeSince(ctx context.Context, userID, activityType string, since time.Time) (int, error) {
	return 0, nil
}

func (s *memActivityStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	return 0, nil
}

type memOwnerStats struct{}

func (s *memOwnerStats) StatsByOwner(ctx context.Context, ownerID string) (*domain.OwnerStats, error) {
	return &domain.OwnerStats{}, nil
}

// scriptedGenerator всегда отвечает одним и тем же текстом и считает вызовы.
type scriptedGenerator struct {
	text  string
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.calls++
	return g.text, nil
}

// newInsightFixture собирает роутер поверх фейковых хранилищ с одним
// загруженным CSV-файлом владельца u1.
func newInsightFixture(t *testing.T, csvData []byte) (http.Handler, *memActivityStore, *scriptedGenerator, uuid.UUID) {
	t.Helper()

	auth.Init(&auth.Config{JWTSecret: testJWTSecret})

	fileID := uuid.New()
	blobKey := "excel_files/u1/" + uuid.New().String()

	fileStore := &memFileStore{file: &domain.FileRecord{
		ID:         fileID,
		Filename:   "data.csv",
		BlobKey:    blobKey,
		OwnerID:    "u1",
		Headers:    []string{"a", "b"},
		UploadDate: time.Now().UTC(),
	}}
	blobStore := &memBlobStore{data: map[string][]byte{blobKey: csvData}}
	activityStore := &memActivityStore{}
	gen := &scriptedGenerator{text: strings.Repeat("Thorough analysis of the dataset. ", 5)}

	h := NewInsightHandler(
		service.NewFileService(fileStore, blobStore),
		service.NewInsightService(gen),
		service.NewActivityService(activityStore, &memOwnerStats{}),
	)

	router := chi.NewRouter()
	router.Post("/api/excel/insights/{fileID}", h.GetInsights)

	return router, activityStore, gen, fileID
}

func postInsights(t *testing.T, router http.Handler, fileID uuid.UUID, question string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]string{"questionPrompt": question})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/excel/insights/"+fileID.String(), bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "u1"))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// Файл без строк данных: 400 и ни одного события активности.
func TestGetInsightsNoDataRecordsNothing(t *testing.T) {
	router, activity, gen, fileID := newInsightFixture(t, []byte("a,b\n"))

	w := postInsights(t, router, fileID, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, activity.events)
	require.Zero(t, gen.calls)
}

// Отсеянный бессодержательный вопрос отвечает подсказкой и не пишет
// ни события анализа, ни события инсайта.
func TestGetInsightsVagueQuestionRecordsNothing(t *testing.T) {
	router, activity, gen, fileID := newInsightFixture(t, []byte("a,b\n1,x\n2,y\n"))

	w := postInsights(t, router, fileID, "hi")
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.InsightResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.IsGenericResponse)

	require.Empty(t, activity.events)
	require.Zero(t, gen.calls)
}

// Содержательный вопрос дает событие insight, полный анализ - analysis.
func TestGetInsightsRecordsEventType(t *testing.T) {
	router, activity, _, fileID := newInsightFixture(t, []byte("a,b\n1,x\n2,y\n"))

	w := postInsights(t, router, fileID, "what is the average of column a?")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, activity.events, 1)
	require.Equal(t, domain.ActivityInsight, activity.events[0].ActivityType)

	router2, activity2, _, fileID2 := newInsightFixture(t, []byte("a,b\n1,x\n2,y\n"))

	w = postInsights(t, router2, fileID2, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, activity2.events, 1)
	require.Equal(t, domain.ActivityAnalysis, activity2.events[0].ActivityType)
}

func TestGetInsightsRequiresAuth(t *testing.T) {
	router, activity, _, fileID := newInsightFixture(t, []byte("a,b\n1,x\n"))

	req := httptest.NewRequest(http.MethodPost, "/api/excel/insights/"+fileID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, activity.events)
}
