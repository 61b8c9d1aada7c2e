package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

const sheetName = "Results"

var headers = []string{
	"Task ID",
	"Original File",
	"Stored File",
	"Status",
	"Category",
	"Subcategory",
	"Category Source",
	"Title",
	"Summary",
	"Pages",
	"Extraction Tier",
	"LLM Attempts",
	"Error",
	"Completed At",
}

// XLSXWriter renders task results as a single-sheet workbook.
type XLSXWriter struct{}

func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

func (w *XLSXWriter) Write(batchID string, results []domain.TaskResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}

	for i, r := range results {
		row := i + 2
		status := "done"
		if !r.Success {
			status = "failed"
		}
		completed := ""
		if !r.CompletedAt.IsZero() {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			r.TaskID,
			r.OriginalFilename,
			r.StoredFilename,
			status,
			r.Category.Main,
			r.Category.Sub,
			string(r.CategorySource),
			r.Title,
			truncate(strings.TrimSpace(r.Summary), 32000),
			r.Pages,
			string(r.ExtractionStats.Tier),
			r.LLMMeta.Attempts,
			r.Error,
			completed,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("xlsx row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "C", 32)
	_ = f.SetColWidth(sheetName, "E", "G", 16)
	_ = f.SetColWidth(sheetName, "H", "H", 40)
	_ = f.SetColWidth(sheetName, "I", "I", 80)
	if err := f.SetDocProps(&excelize.DocProperties{Title: "batch " + batchID, Creator: "sumflow"}); err != nil {
		return nil, fmt.Errorf("xlsx props: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate caps s at n runes; Excel rejects cells over 32767 characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
