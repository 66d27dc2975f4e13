package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sheetlens/internal/domain"
)

const (
	defaultActivityLimit = 10
	recentWindow         = 7 * 24 * time.Hour
)

// ActivityStore - операции хранилища событий.
type ActivityStore interface {
	Insert(ctx context.Context, event *domain.ActivityEvent) error
	RecentByUser(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ActivityEvent, error)
	CountByTypeSince(ctx context.Context, userID, activityType string, since time.Time) (int, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error)
}

// OwnerStatsStore дает агрегаты по файлам владельца для дашборда.
type OwnerStatsStore interface {
	StatsByOwner(ctx context.Context, ownerID string) (*domain.OwnerStats, error)
}

// ActivityService пишет и агрегирует события активности. Запись best-effort:
// телеметрия никогда не валит пользовательскую операцию.
type ActivityService struct {
	activityRepo ActivityStore
	fileRepo     OwnerStatsStore
}

func NewActivityService(activityRepo ActivityStore, fileRepo OwnerStatsStore) *ActivityService {
	return &ActivityService{
		activityRepo: activityRepo,
		fileRepo:     fileRepo,
	}
}

// Record добавляет событие и глотает любые ошибки записи: единственный след
// неудачи - строка в логе.
func (s *ActivityService) Record(ctx context.Context, userID string, fileID *uuid.UUID, activityType string, file *domain.FileRecord) {
	event := &domain.ActivityEvent{
		ID:           uuid.New(),
		UserID:       userID,
		FileID:       fileID,
		ActivityType: activityType,
		Timestamp:    time.Now().UTC(),
	}

	// Снимок файла на момент события
	if file != nil {
		event.Filename = file.Filename
		event.RowCount = file.RowCount
		event.ColumnCount = len(file.Headers)
	}

	if err := s.activityRepo.Insert(ctx, event); err != nil {
		log.Printf("failed to record %s activity for user %s: %v", activityType, userID, err)
	}
}

// RecentActivity возвращает последние события пользователя, новые первыми.
func (s *ActivityService) RecentActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	events, err := s.activityRepo.RecentByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if events == nil {
		events = []domain.ActivityEvent{}
	}

	return events, nil
}

// DashboardStats собирает сводку: агрегаты по файлам плюс количество
// загрузок и просмотров за последние 7 дней по реальным событиям.
func (s *ActivityService) DashboardStats(ctx context.Context, userID string) (*domain.DashboardStats, error) {
	fileStats, err := s.fileRepo.StatsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	since := time.Now().UTC().Add(-recentWindow)

	uploads, err := s.activityRepo.CountByTypeSince(ctx, userID, domain.ActivityUpload, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	views, err := s.activityRepo.CountByTypeSince(ctx, userID, domain.ActivityView, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &domain.DashboardStats{
		TotalFiles:    fileStats.TotalFiles,
		TotalRows:     fileStats.TotalRows,
		RecentUploads: uploads,
		RecentViews:   views,
	}, nil
}

// MostPopularFile агрегирует события view/analysis/insight по имени файла и
// возвращает группу с наибольшим числом обращений. Если таких событий нет,
// берется самое свежее событие с именем файла; если нет и его - сентинел
// None.
func (s *ActivityService) MostPopularFile(ctx context.Context, userID string) (*domain.PopularFile, error) {
	events, err := s.activityRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	type group struct {
		count  int
		fileID *uuid.UUID
	}

	groups := make(map[string]*group)
	var order []string

	for i := range events {
		e := &events[i]
		if e.Filename == "" {
			continue
		}
		switch e.ActivityType {
		case domain.ActivityView, domain.ActivityAnalysis, domain.ActivityInsight:
		default:
			continue
		}

		g, ok := groups[e.Filename]
		if !ok {
			g = &group{fileID: e.FileID}
			groups[e.Filename] = g
			order = append(order, e.Filename)
		}
		g.count++
	}

	var (
		best     *group
		bestName string
	)
	// Порядок обхода фиксирован порядком первого появления, при равном
	// счете выигрывает более свежая группа
	for _, name := range order {
		g := groups[name]
		if best == nil || g.count > best.count {
			best = g
			bestName = name
		}
	}

	if best != nil {
		return &domain.PopularFile{
			Filename:    bestName,
			FileID:      best.fileID,
			AccessCount: best.count,
		}, nil
	}

	// Групп нет - откатываемся к самому свежему событию с именем файла
	for i := range events {
		e := &events[i]
		if e.Filename != "" {
			return &domain.PopularFile{
				Filename:    e.Filename,
				FileID:      e.FileID,
				AccessCount: 1,
			}, nil
		}
	}

	return &domain.PopularFile{None: true}, nil
}

// CleanupDuplicates удаляет события, дублирующие более свежее событие с тем
// же ключом (файл, тип, календарный день UTC). Первое встреченное событие
// каждого ключа всегда остается.
func (s *ActivityService) CleanupDuplicates(ctx context.Context, userID string) (int, error) {
	events, err := s.activityRepo.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	type dupKey struct {
		fileID       string
		activityType string
		day          string
	}

	seen := make(map[dupKey]bool)
	var duplicates []uuid.UUID

	// События отсортированы новые-первыми, поэтому остается самое свежее
	for i := range events {
		e := &events[i]

		// События без ссылки на файл делят пустой идентификатор:
		// однотипные события одного дня схлопываются между собой
		fileID := ""
		if e.FileID != nil {
			fileID = e.FileID.String()
		}
		key := dupKey{
			fileID:       fileID,
			activityType: e.ActivityType,
			day:          e.Timestamp.UTC().Format("2006-01-02"),
		}

		if seen[key] {
			duplicates = append(duplicates, e.ID)
		} else {
			seen[key] = true
		}
	}

	if len(duplicates) == 0 {
		return 0, nil
	}

	removed, err := s.activityRepo.DeleteByIDs(ctx, duplicates)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return removed, nil
}
