// Package ingest декодирует загруженные таблицы (.xlsx, .xls, .csv) в
// нормализованный вид: список заголовков и строки как отображения
// заголовок -> значение. Пакет чистый: никакой записи в хранилища.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"sheetlens/internal/domain"
)

// Сигнатура OLE compound file, которой начинаются бинарные книги BIFF
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Table - нормализованное представление первого листа таблицы.
// Headers - первая строка как есть (пустые и повторяющиеся значения не
// убираются), Rows - остальные строки; отсутствующие ячейки заполняются
// пустой строкой, все значения приводятся к строкам.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// RowCount возвращает число строк данных (без строки заголовков).
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// IsSpreadsheet проверяет имя файла и заявленный MIME-тип до какой-либо
// обработки содержимого.
func IsSpreadsheet(filename, contentType string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls", ".csv":
		return true
	}

	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "excel") || strings.Contains(ct, "spreadsheetml") {
		return true
	}
	return ct == "application/vnd.ms-excel" || ct == "text/csv"
}

// Decode разбирает байты таблицы. Формат определяется по содержимому:
// zip-сигнатура "PK" означает xlsx, сигнатура OLE - бинарную книгу BIFF
// (.xls), все остальное разбирается как CSV в кодировке UTF-8. Учитывается
// только первый лист книги.
func Decode(data []byte) (*Table, error) {
	var (
		raw [][]string
		err error
	)

	switch {
	case len(data) >= 2 && data[0] == 'P' && data[1] == 'K':
		raw, err = decodeXLSX(data)
	case bytes.HasPrefix(data, oleMagic):
		raw, err = decodeXLS(data)
	default:
		raw, err = decodeCSV(data)
	}
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no header row", domain.ErrDecode)
	}

	headers := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, record := range raw[1:] {
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrDecode)
	}

	// Остальные листы книги игнорируются
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	return rows, nil
}

func decodeXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	// Остальные листы книги игнорируются
	sheet, err := wb.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrDecode)
	}

	var raw [][]string
	for i := 0; i < sheet.GetNumberRows(); i++ {
		row, err := sheet.GetRow(i)
		if err != nil {
			// Пропущенные в книге строки остаются пустыми записями
			raw = append(raw, nil)
			continue
		}

		var record []string
		for _, cell := range row.GetCols() {
			record = append(record, cell.GetString())
		}
		raw = append(raw, record)
	}

	return raw, nil
}

func decodeCSV(data []byte) ([][]string, error) {
	// Бинарный вход без известной сигнатуры не должен тихо превратиться
	// в таблицу из мусорных байтов
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8 text", domain.ErrDecode)
	}

	// Срезаем UTF-8 BOM, иначе он попадает в первый заголовок
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	return records, nil
}
