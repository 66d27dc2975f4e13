package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FileRecord описывает один загруженный файл таблицы и ссылается на его
// текущий blob в S3. На пару (owner_id, filename) существует не более одной
// живой записи: повторная загрузка заменяет blob и обновляет запись.
type FileRecord struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	Filename   string         `json:"filename" db:"filename"`
	BlobKey    string         `json:"-" db:"blob_key"`
	OwnerID    string         `json:"owner_id" db:"owner_id"`
	Headers    pq.StringArray `json:"headers" db:"headers"`
	RowCount   int            `json:"row_count" db:"row_count"`
	UploadDate time.Time      `json:"upload_date" db:"upload_date"`
}

// FileUploadResponse представляет ответ на загрузку файла
type FileUploadResponse struct {
	FileID   uuid.UUID `json:"fileId"`
	Filename string    `json:"fileName"`
	Headers  []string  `json:"headers"`
	RowCount int       `json:"rowCount"`
	Replaced bool      `json:"replaced"`
}

// FileDownload связывает метаданные файла с потоком его содержимого.
type FileDownload struct {
	File          *FileRecord
	Data          []byte
	ContentType   string
	ContentLength int64
}

// FileData - результат повторного декодирования blob-а в полные строки.
type FileData struct {
	Filename string              `json:"filename"`
	Rows     []map[string]string `json:"data"`
}

// OwnerStats - агрегаты по файлам владельца для дашборда.
type OwnerStats struct {
	TotalFiles int `db:"total_files"`
	TotalRows  int `db:"total_rows"`
}
