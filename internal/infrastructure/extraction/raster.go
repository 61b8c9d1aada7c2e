package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/sumflow/internal/infrastructure/execx"
)

// Rasterizer renders every page of a PDF to an image file, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int, outDir string) ([]string, error)
}

// PDFToPPM rasterizes with poppler's pdftoppm.
type PDFToPPM struct {
	bin    string
	runner execx.Runner
}

func NewPDFToPPM(bin string, runner execx.Runner) *PDFToPPM {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &PDFToPPM{bin: bin, runner: runner}
}

func (p *PDFToPPM) Rasterize(ctx context.Context, pdfPath string, dpi int, outDir string) ([]string, error) {
	prefix := filepath.Join(outDir, fmt.Sprintf("page-%d", dpi))
	_, stderr, err := p.runner.Run(ctx, p.bin, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("collect rendered pages: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}
	return matches, nil
}

// pageNumber parses the trailing "-<n>.png" pdftoppm suffix.
func pageNumber(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
