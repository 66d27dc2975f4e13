package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"sheetlens/internal/domain"
	"sheetlens/internal/ingest"
	"sheetlens/internal/service/s3"
)

// Определение констант для работы с файлами
const (
	maxFileSize = 100 * 1024 * 1024 // 100MB максимальный размер файла
)

var errFileTooLarge = errors.New("file size exceeds maximum allowed size")

// FileStore - операции хранилища метаданных, нужные файловому сервису.
type FileStore interface {
	Create(ctx context.Context, file *domain.FileRecord) error
	Update(ctx context.Context, file *domain.FileRecord) error
	GetOwned(ctx context.Context, id uuid.UUID, ownerID string) (*domain.FileRecord, error)
	GetByOwnerAndName(ctx context.Context, ownerID, filename string) (*domain.FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.FileRecord, error)
}

// FileService оркестрирует загрузку и чтение файлов: декодирование,
// blob-хранилище и метаданные.
type FileService struct {
	fileRepo FileStore
	s3Client s3.Storage
}

func NewFileService(fileRepo FileStore, s3Client s3.Storage) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		s3Client: s3Client,
	}
}

// Upload декодирует таблицу, кладет байты в S3 и создает либо обновляет
// запись метаданных. Повторная загрузка того же имени тем же владельцем
// заменяет существующую запись, старый blob удаляется best-effort.
//
// Операция не атомарна между S3 и базой: при падении между записями может
// остаться осиротевший blob. Успешный ответ гарантирует только то, что обе
// записи подтверждены.
func (s *FileService) Upload(ctx context.Context, filename, contentType string, data []byte, ownerID string) (*domain.FileUploadResponse, error) {
	if filename == "" || ownerID == "" {
		return nil, fmt.Errorf("filename and owner are required")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%w: max size is %d bytes", errFileTooLarge, maxFileSize)
	}

	if !ingest.IsSpreadsheet(filename, contentType) {
		return nil, fmt.Errorf("%w: only spreadsheet files are allowed", domain.ErrDecode)
	}

	// Декодируем до любых записей: при ошибке не должно остаться ни
	// записи метаданных, ни частично записанного blob-а
	table, err := ingest.Decode(data)
	if err != nil {
		return nil, err
	}

	existing, err := s.fileRepo.GetByOwnerAndName(ctx, ownerID, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	blobKey := fmt.Sprintf("excel_files/%s/%s", ownerID, uuid.New().String())
	if err := s.s3Client.UploadBytes(ctx, blobKey, data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	now := time.Now().UTC()

	if existing != nil {
		oldBlobKey := existing.BlobKey

		existing.BlobKey = blobKey
		existing.Headers = table.Headers
		existing.RowCount = table.RowCount()
		existing.UploadDate = now

		if err := s.fileRepo.Update(ctx, existing); err != nil {
			// Запись не обновилась - убираем только что записанный blob
			if deleteErr := s.s3Client.DeleteObject(ctx, blobKey); deleteErr != nil {
				log.Printf("failed to delete blob from s3 after db error: %v", deleteErr)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}

		// Старый blob больше не достижим через запись; ошибка удаления
		// не срывает загрузку
		if err := s.s3Client.DeleteObject(ctx, oldBlobKey); err != nil {
			log.Printf("failed to delete replaced blob %s: %v", oldBlobKey, err)
		}

		return &domain.FileUploadResponse{
			FileID:   existing.ID,
			Filename: existing.Filename,
			Headers:  table.Headers,
			RowCount: table.RowCount(),
			Replaced: true,
		}, nil
	}

	newFile := &domain.FileRecord{
		ID:         uuid.New(),
		Filename:   filename,
		BlobKey:    blobKey,
		OwnerID:    ownerID,
		Headers:    table.Headers,
		RowCount:   table.RowCount(),
		UploadDate: now,
	}

	if err := s.fileRepo.Create(ctx, newFile); err != nil {
		if deleteErr := s.s3Client.DeleteObject(ctx, blobKey); deleteErr != nil {
			log.Printf("failed to delete blob from s3 after db error: %v", deleteErr)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &domain.FileUploadResponse{
		FileID:   newFile.ID,
		Filename: newFile.Filename,
		Headers:  table.Headers,
		RowCount: table.RowCount(),
	}, nil
}

// List возвращает все файлы владельца, новые первыми.
func (s *FileService) List(ctx context.Context, ownerID string) ([]domain.FileRecord, error) {
	files, err := s.fileRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return files, nil
}

// Download отдает исходные байты файла вместе с метаданными. Запись,
// ссылающаяся на удаленный blob, дает ошибку, а не пустой успех.
func (s *FileService) Download(ctx context.Context, fileID uuid.UUID, ownerID string) (*domain.FileDownload, error) {
	file, err := s.fileRepo.GetOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}

	obj, err := s.s3Client.GetObject(ctx, file.BlobKey)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: blob is missing", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	return &domain.FileDownload{
		File:          file,
		Data:          data,
		ContentType:   obj.ContentType(),
		ContentLength: int64(len(data)),
	}, nil
}

// FetchRows заново декодирует blob файла в полные строки. Общий источник
// данных для предпросмотра и для анализа: оба получают одно и то же
// содержимое из одного blob-а.
func (s *FileService) FetchRows(ctx context.Context, fileID uuid.UUID, ownerID string) (*domain.FileRecord, *ingest.Table, error) {
	file, err := s.fileRepo.GetOwned(ctx, fileID, ownerID)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.s3Client.GetObject(ctx, file.BlobKey)
	if err != nil {
		if errors.Is(err, s3.ErrObjectNotFound) {
			return nil, nil, fmt.Errorf("%w: blob is missing", domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	table, err := ingest.Decode(data)
	if err != nil {
		return nil, nil, err
	}

	return file, table, nil
}
