package extraction

import (
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// TextLayerReader returns the embedded text of every page, in page order.
type TextLayerReader interface {
	PageTexts(path string) ([]string, error)
}

// PDFTextLayer reads embedded text with ledongthuc/pdf.
type PDFTextLayer struct{}

func (PDFTextLayer) PageTexts(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		texts = append(texts, pageText(reader, i))
	}
	return texts, nil
}

// pageText isolates malformed content streams, which the parser reports by panicking.
func pageText(reader *pdf.Reader, index int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("text_layer_page_failed", "page", index, "error", fmt.Sprint(r))
			text = ""
		}
	}()

	page := reader.Page(index)
	if page.V.IsNull() {
		return ""
	}
	out, err := page.GetPlainText(nil)
	if err != nil {
		slog.Warn("text_layer_page_failed", "page", index, "error", err)
		return ""
	}
	return out
}
