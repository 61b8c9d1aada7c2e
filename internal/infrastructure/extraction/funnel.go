package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type Config struct {
	WorkDir         string
	TextLayerFirst  bool
	MinPageChars    int
	DPI             int
	Lang            string
	PSM             int
	SecondaryLang   string
	SecondaryMinDPI int
	Script          string
}

func (c Config) normalize() Config {
	out := c
	if out.MinPageChars <= 0 {
		out.MinPageChars = 40
	}
	if out.DPI <= 0 {
		out.DPI = 300
	}
	if out.DPI < 72 {
		out.DPI = 72
	}
	if out.Lang == "" {
		out.Lang = "kor"
	}
	if out.PSM <= 0 {
		out.PSM = 6
	}
	if out.SecondaryLang == "" {
		out.SecondaryLang = "kor+eng"
	}
	if out.SecondaryMinDPI <= 0 {
		out.SecondaryMinDPI = 240
	}
	if out.WorkDir == "" {
		out.WorkDir = os.TempDir()
	}
	return out
}

// secondaryPSM swaps block mode for sparse-text mode and everything else back to block mode.
func (c Config) secondaryPSM() int {
	if c.PSM == 6 {
		return 11
	}
	return 6
}

func (c Config) secondaryDPI() int {
	return max(c.SecondaryMinDPI, c.DPI)
}

// Funnel extracts text from a page-bearing PDF: embedded text layer first,
// then a primary recognition pass, then a secondary pass when the primary found nothing.
type Funnel struct {
	cfg        Config
	textLayer  TextLayerReader
	rasterizer Rasterizer
	prep       ImagePreprocessor
	recognizer Recognizer
	script     *unicode.RangeTable
}

// NewFunnel wires the funnel. prep may be nil to feed rendered pages to the recognizer as-is.
func NewFunnel(cfg Config, textLayer TextLayerReader, rasterizer Rasterizer, prep ImagePreprocessor, recognizer Recognizer) *Funnel {
	cfg = cfg.normalize()
	script := unicode.Scripts[cfg.Script]
	if script == nil {
		script = unicode.Hangul
	}
	return &Funnel{
		cfg:        cfg,
		textLayer:  textLayer,
		rasterizer: rasterizer,
		prep:       prep,
		recognizer: recognizer,
		script:     script,
	}
}

type pass struct {
	tier domain.ExtractionTier
	dpi  int
	lang string
	psm  int
}

func (f *Funnel) Extract(ctx context.Context, path string) (domain.ExtractionResult, error) {
	layer, err := f.textLayer.PageTexts(path)
	if err != nil {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrDocumentOpen, "extract", err)
	}

	if f.cfg.TextLayerFirst && textLayerSufficient(layer, f.cfg.MinPageChars) {
		pages := make([]domain.PageExtraction, len(layer))
		for i, text := range layer {
			trimmed := strings.TrimSpace(text)
			pages[i] = domain.PageExtraction{Index: i + 1, HasEmbeddedText: trimmed != "", Text: trimmed}
		}
		return f.result(pages, len(layer), domain.TierTextLayer), nil
	}

	scratch, err := os.MkdirTemp(f.cfg.WorkDir, "ocr-*")
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("create ocr scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	primary := pass{tier: domain.TierOCRPrimary, dpi: f.cfg.DPI, lang: f.cfg.Lang, psm: f.cfg.PSM}
	pages, err := f.recognizeAll(ctx, path, layer, primary, scratch)
	if err != nil {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrDocumentOpen, "rasterize", err)
	}
	if anyText(pages) {
		return f.result(pages, max(len(layer), len(pages)), primary.tier), nil
	}

	secondary := pass{tier: domain.TierOCRSecondary, dpi: f.cfg.secondaryDPI(), lang: f.cfg.SecondaryLang, psm: f.cfg.secondaryPSM()}
	slog.Info("ocr_escalate", "path", path, "dpi", secondary.dpi, "lang", secondary.lang, "psm", secondary.psm)
	retry, err := f.recognizeAll(ctx, path, layer, secondary, scratch)
	if err != nil {
		slog.Warn("ocr_secondary_failed", "path", path, "error", err)
		return f.result(pages, max(len(layer), len(pages)), primary.tier), nil
	}
	return f.result(retry, max(len(layer), len(retry)), secondary.tier), nil
}

func (f *Funnel) recognizeAll(ctx context.Context, path string, layer []string, p pass, scratch string) ([]domain.PageExtraction, error) {
	dir := filepath.Join(scratch, string(p.tier))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pass dir: %w", err)
	}
	images, err := f.rasterizer.Rasterize(ctx, path, p.dpi, dir)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.PageExtraction, 0, len(images))
	for i, img := range images {
		page := domain.PageExtraction{Index: i + 1}
		if i < len(layer) {
			page.HasEmbeddedText = strings.TrimSpace(layer[i]) != ""
		}

		input := img
		if f.prep != nil {
			prepared := filepath.Join(dir, fmt.Sprintf("prep-%d.png", i+1))
			if err := f.prep.Preprocess(img, prepared); err != nil {
				slog.Warn("ocr_preprocess_failed", "page", i+1, "error", err)
			} else {
				input = prepared
			}
		}

		rec, err := f.recognizer.Recognize(ctx, input, p.lang, p.psm)
		if err != nil {
			slog.Warn("ocr_page_failed", "page", i+1, "tier", p.tier, "error", err)
			pages = append(pages, page)
			continue
		}
		page.Text = strings.TrimSpace(rec.Text)
		page.Confidence = rec.Confidence
		pages = append(pages, page)
	}
	return pages, nil
}

func (f *Funnel) result(pages []domain.PageExtraction, pageCount int, tier domain.ExtractionTier) domain.ExtractionResult {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	full := strings.Join(texts, "\n\n")
	return domain.ExtractionResult{
		Text:      full,
		PageCount: pageCount,
		Pages:     pages,
		Stats:     computeStats(full, pages, f.script, tier),
	}
}

// textLayerSufficient requires at least one page with content, and every page
// with content to reach minChars after trimming.
func textLayerSufficient(layer []string, minChars int) bool {
	withContent := 0
	for _, text := range layer {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		withContent++
		if utf8.RuneCountInString(trimmed) < minChars {
			return false
		}
	}
	return withContent > 0
}

func anyText(pages []domain.PageExtraction) bool {
	for _, p := range pages {
		if p.Text != "" {
			return true
		}
	}
	return false
}

// ReadText loads a text artifact produced by a converter. It counts as one page.
func (f *Funnel) ReadText(_ context.Context, path string) (domain.ExtractionResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrDocumentOpen, "read text artifact", err)
	}
	if !utf8.Valid(raw) {
		raw = []byte(strings.ToValidUTF8(string(raw), ""))
	}
	text := strings.TrimSpace(string(raw))
	pages := []domain.PageExtraction{{Index: 1, HasEmbeddedText: text != "", Text: text}}
	return domain.ExtractionResult{
		Text:      text,
		PageCount: 1,
		Pages:     pages,
		Stats:     computeStats(text, pages, f.script, domain.TierDirectText),
	}, nil
}
