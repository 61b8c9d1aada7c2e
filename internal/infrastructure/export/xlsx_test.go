package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

func TestXLSXWriterRows(t *testing.T) {
	results := []domain.TaskResult{
		{TaskID: "t1", OriginalFilename: "a.pdf", Summary: "요약 내용", Category: domain.Category{Main: "finance", Sub: "invoice"}, Success: true, Pages: 2},
		{TaskID: "t2", OriginalFilename: "b.pdf", Error: "summary generation failed"},
	}
	data, err := NewXLSXWriter().Write("b1", results)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "Task ID" || rows[1][4] != "finance" || rows[1][8] != "요약 내용" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][3] != "failed" || rows[2][12] != "summary generation failed" {
		t.Fatalf("unexpected failed row: %v", rows[2])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate(strings.Repeat("가", 10), 5); got != "가가가가…" {
		t.Fatalf("truncate() = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("truncate() = %q", got)
	}
}
