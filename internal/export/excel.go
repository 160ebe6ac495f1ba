package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter builds a workbook one sheet at a time.
type ExcelWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	headerStyle  int
}

func NewExcelWriter() *ExcelWriter {
	f := excelize.NewFile()
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	return &ExcelWriter{file: f, headerStyle: style}
}

// AddSheet starts a new sheet; the first call renames the default sheet.
func (w *ExcelWriter) AddSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *ExcelWriter) WriteHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}
	if w.headerStyle != 0 && len(columns) > 0 {
		start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, w.headerStyle)
	}
	return nil
}

func (w *ExcelWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *ExcelWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelWriter) Close() error {
	return w.file.Close()
}
