package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"sheetlens/internal/domain"
)

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.FileRecord) error {
	query := `
        INSERT INTO files (id, filename, blob_key, owner_id, headers, row_count, upload_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		file.ID,
		file.Filename,
		file.BlobKey,
		file.OwnerID,
		file.Headers,
		file.RowCount,
		file.UploadDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// Update перезаписывает производные поля записи при повторной загрузке
// того же имени файла тем же владельцем.
func (r *FileRepository) Update(ctx context.Context, file *domain.FileRecord) error {
	query := `
        UPDATE files
        SET blob_key = $1,
            headers = $2,
            row_count = $3,
            upload_date = $4
        WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query,
		file.BlobKey,
		file.Headers,
		file.RowCount,
		file.UploadDate,
		file.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update file record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// GetOwned возвращает запись по id в пределах владельца. Фильтр по owner_id
// и есть проверка доступа: чужие файлы неотличимы от несуществующих.
func (r *FileRepository) GetOwned(ctx context.Context, id uuid.UUID, ownerID string) (*domain.FileRecord, error) {
	var file domain.FileRecord
	query := `SELECT * FROM files WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, &file, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}

	return &file, nil
}

// GetByOwnerAndName ищет живую запись для пары (владелец, имя файла).
// Отсутствие записи не является ошибкой.
func (r *FileRepository) GetByOwnerAndName(ctx context.Context, ownerID, filename string) (*domain.FileRecord, error) {
	var file domain.FileRecord
	query := `SELECT * FROM files WHERE owner_id = $1 AND filename = $2 LIMIT 1`

	err := r.db.GetContext(ctx, &file, query, ownerID, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check file existence: %w", err)
	}

	return &file, nil
}

func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	var files []domain.FileRecord
	query := `SELECT * FROM files WHERE owner_id = $1 ORDER BY upload_date DESC`

	err := r.db.SelectContext(ctx, &files, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// StatsByOwner считает количество файлов и суммарное число строк владельца.
func (r *FileRepository) StatsByOwner(ctx context.Context, ownerID string) (*domain.OwnerStats, error) {
	var stats domain.OwnerStats
	query := `
        SELECT COUNT(*) AS total_files, COALESCE(SUM(row_count), 0) AS total_rows
        FROM files WHERE owner_id = $1`

	err := r.db.GetContext(ctx, &stats, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner stats: %w", err)
	}

	return &stats, nil
}
