package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/sumflow/internal/infrastructure/execx"
)

// OfficeRenderer converts documents to PDF with a headless LibreOffice.
type OfficeRenderer struct {
	bin    string
	runner execx.Runner
}

func NewOfficeRenderer(bin string, runner execx.Runner) *OfficeRenderer {
	if bin == "" {
		bin = "soffice"
	}
	return &OfficeRenderer{bin: bin, runner: runner}
}

func (o *OfficeRenderer) Available() bool {
	return execx.Available(o.bin)
}

func (o *OfficeRenderer) RenderPDF(ctx context.Context, src, dst string) error {
	outDir, err := os.MkdirTemp(filepath.Dir(dst), "render-*")
	if err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	_, stderr, err := o.runner.Run(ctx, o.bin,
		"--headless", "--nologo", "--nofirststartwizard",
		"--convert-to", "pdf",
		"--outdir", outDir,
		src,
	)
	if err != nil {
		return fmt.Errorf("soffice convert: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	produced := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("soffice produced no pdf: %w", err)
	}
	if err := os.Rename(produced, dst); err != nil {
		return fmt.Errorf("move rendered pdf: %w", err)
	}
	return nil
}

// HWPTextConverter runs hwp5txt and returns its stdout.
type HWPTextConverter struct {
	bin    string
	runner execx.Runner
}

func NewHWPTextConverter(bin string, runner execx.Runner) *HWPTextConverter {
	if bin == "" {
		bin = "hwp5txt"
	}
	return &HWPTextConverter{bin: bin, runner: runner}
}

func (h *HWPTextConverter) Available() bool {
	return execx.Available(h.bin)
}

func (h *HWPTextConverter) ExtractText(ctx context.Context, src string) (string, error) {
	out, stderr, err := h.runner.Run(ctx, h.bin, src)
	if err != nil {
		return "", fmt.Errorf("hwp5txt: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	if !utf8.Valid(out) {
		out = []byte(strings.ToValidUTF8(string(out), "\uFFFD"))
	}
	return string(out), nil
}

// ValidatePDF checks a rendered artifact with pdfcpu and returns its page count.
func ValidatePDF(path string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, fmt.Errorf("validate pdf: %w", err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return pages, nil
}
