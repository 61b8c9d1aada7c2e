package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type textLayerFake struct {
	pages []string
	err   error
}

func (f textLayerFake) PageTexts(string) ([]string, error) {
	return f.pages, f.err
}

type rasterizerFake struct {
	pages int
	dpis  []int
	err   error
}

func (f *rasterizerFake) Rasterize(_ context.Context, _ string, dpi int, outDir string) ([]string, error) {
	f.dpis = append(f.dpis, dpi)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, f.pages)
	for i := range out {
		out[i] = fmt.Sprintf("%s/page-%d-%d.png", outDir, dpi, i+1)
	}
	return out, nil
}

type recognizeCall struct {
	image string
	lang  string
	psm   int
}

type recognizerFake struct {
	calls   []recognizeCall
	respond func(call recognizeCall, n int) (Recognition, error)
}

func (f *recognizerFake) Recognize(_ context.Context, imagePath, lang string, psm int) (Recognition, error) {
	call := recognizeCall{image: imagePath, lang: lang, psm: psm}
	f.calls = append(f.calls, call)
	if f.respond == nil {
		return Recognition{}, nil
	}
	return f.respond(call, len(f.calls))
}

func conf(v float64) *float64 { return &v }

func newTestFunnel(t *testing.T, layer TextLayerReader, r Rasterizer, rec Recognizer) *Funnel {
	t.Helper()
	return NewFunnel(Config{
		WorkDir:        t.TempDir(),
		TextLayerFirst: true,
		DPI:            300,
		Lang:           "kor",
		PSM:            6,
		SecondaryLang:  "kor+eng",
		Script:         "Hangul",
	}, layer, r, nil, rec)
}

func TestExtractDigitalPDFSkipsRecognition(t *testing.T) {
	text := strings.Repeat("digital text ", 38) + "done"
	rasterizer := &rasterizerFake{pages: 1}
	recognizer := &recognizerFake{}
	f := newTestFunnel(t, textLayerFake{pages: []string{text}}, rasterizer, recognizer)

	res, err := f.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != text {
		t.Fatalf("expected embedded text verbatim, got %q", res.Text)
	}
	if res.PageCount != 1 {
		t.Fatalf("expected 1 page, got %d", res.PageCount)
	}
	if len(recognizer.calls) != 0 || len(rasterizer.dpis) != 0 {
		t.Fatalf("expected no rasterize/recognize calls, got %d/%d", len(rasterizer.dpis), len(recognizer.calls))
	}
	if res.Stats.Tier != domain.TierTextLayer || res.Stats.Chars != len(text) {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}
}

func TestExtractShortTextLayerFallsBackToRecognition(t *testing.T) {
	long := strings.Repeat("x", 60)
	rasterizer := &rasterizerFake{pages: 2}
	recognizer := &recognizerFake{respond: func(call recognizeCall, n int) (Recognition, error) {
		return Recognition{Text: fmt.Sprintf("page %d", n), Confidence: conf(90)}, nil
	}}
	f := newTestFunnel(t, textLayerFake{pages: []string{long, "short"}}, rasterizer, recognizer)

	res, err := f.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(recognizer.calls) != 2 {
		t.Fatalf("expected 2 recognition calls, got %d", len(recognizer.calls))
	}
	if !res.Pages[0].HasEmbeddedText || !res.Pages[1].HasEmbeddedText {
		t.Fatalf("expected embedded text flags to be kept: %+v", res.Pages)
	}
	if res.Stats.Tier != domain.TierOCRPrimary {
		t.Fatalf("expected primary tier, got %s", res.Stats.Tier)
	}
}

func TestExtractScannedPartialEmptyDoesNotEscalate(t *testing.T) {
	rasterizer := &rasterizerFake{pages: 2}
	recognizer := &recognizerFake{respond: func(call recognizeCall, n int) (Recognition, error) {
		if n == 1 {
			return Recognition{Text: "  "}, nil
		}
		return Recognition{Text: "스캔된 두 번째 페이지", Confidence: conf(81.456)}, nil
	}}
	f := newTestFunnel(t, textLayerFake{pages: []string{"", ""}}, rasterizer, recognizer)

	res, err := f.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "스캔된 두 번째 페이지" {
		t.Fatalf("expected page 2 text only, got %q", res.Text)
	}
	if len(recognizer.calls) != 2 {
		t.Fatalf("expected no secondary pass, got %d calls", len(recognizer.calls))
	}
	for _, call := range recognizer.calls {
		if call.lang != "kor" || call.psm != 6 {
			t.Fatalf("unexpected primary call %+v", call)
		}
	}
	if len(rasterizer.dpis) != 1 || rasterizer.dpis[0] != 300 {
		t.Fatalf("expected one rasterization at 300 dpi, got %v", rasterizer.dpis)
	}
	if res.Stats.AvgConfidence == nil || *res.Stats.AvgConfidence != 81.46 {
		t.Fatalf("unexpected avg confidence %v", res.Stats.AvgConfidence)
	}
	if res.Stats.ScriptRatio <= 0.5 {
		t.Fatalf("expected hangul-dominant ratio, got %v", res.Stats.ScriptRatio)
	}
}

func TestExtractEscalatesWhenPrimaryFindsNothing(t *testing.T) {
	rasterizer := &rasterizerFake{pages: 2}
	recognizer := &recognizerFake{respond: func(call recognizeCall, n int) (Recognition, error) {
		if call.lang == "kor+eng" && n == 4 {
			return Recognition{Text: "found on retry"}, nil
		}
		return Recognition{}, nil
	}}
	f := newTestFunnel(t, textLayerFake{pages: []string{"", ""}}, rasterizer, recognizer)

	res, err := f.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(recognizer.calls) != 4 {
		t.Fatalf("expected primary + secondary calls, got %d", len(recognizer.calls))
	}
	last := recognizer.calls[3]
	if last.lang != "kor+eng" || last.psm != 11 {
		t.Fatalf("unexpected secondary parameters %+v", last)
	}
	if rasterizer.dpis[1] != 300 {
		t.Fatalf("expected secondary dpi max(240, 300)=300, got %d", rasterizer.dpis[1])
	}
	if res.Text != "found on retry" || res.Stats.Tier != domain.TierOCRSecondary {
		t.Fatalf("unexpected result %q tier=%s", res.Text, res.Stats.Tier)
	}
}

func TestExtractSwallowsSinglePageFailure(t *testing.T) {
	rasterizer := &rasterizerFake{pages: 3}
	recognizer := &recognizerFake{respond: func(call recognizeCall, n int) (Recognition, error) {
		if n == 2 {
			return Recognition{}, errors.New("tesseract crashed")
		}
		return Recognition{Text: fmt.Sprintf("p%d", n)}, nil
	}}
	f := newTestFunnel(t, textLayerFake{pages: []string{"", "", ""}}, rasterizer, recognizer)

	res, err := f.Extract(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Text != "p1\n\np3" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.PageCount != 3 || res.Pages[1].Text != "" {
		t.Fatalf("unexpected pages %+v", res.Pages)
	}
}

func TestExtractFailsWhenDocumentCannotOpen(t *testing.T) {
	f := newTestFunnel(t, textLayerFake{err: errors.New("not a pdf")}, &rasterizerFake{}, &recognizerFake{})
	_, err := f.Extract(context.Background(), "bad.pdf")
	if !domain.IsKind(err, domain.ErrDocumentOpen) {
		t.Fatalf("expected document open error, got %v", err)
	}
}

func TestConfigSecondaryParameters(t *testing.T) {
	cfg := Config{DPI: 50, PSM: 4}.normalize()
	if cfg.DPI != 72 {
		t.Fatalf("expected dpi floor 72, got %d", cfg.DPI)
	}
	if cfg.secondaryDPI() != 240 {
		t.Fatalf("expected secondary dpi floor 240, got %d", cfg.secondaryDPI())
	}
	if cfg.secondaryPSM() != 6 {
		t.Fatalf("expected psm 6 for non-block primary, got %d", cfg.secondaryPSM())
	}
}

func TestTextLayerSufficient(t *testing.T) {
	long := strings.Repeat("가", 40)
	cases := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"all long", []string{long, long}, true},
		{"blank pages ignored", []string{long, "   "}, true},
		{"one short page", []string{long, "short"}, false},
		{"no content", []string{"", ""}, false},
		{"no pages", nil, false},
	}
	for _, tc := range cases {
		if got := textLayerSufficient(tc.pages, 40); got != tc.want {
			t.Fatalf("%s: textLayerSufficient() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestReadTextArtifact(t *testing.T) {
	f := newTestFunnel(t, textLayerFake{}, &rasterizerFake{}, &recognizerFake{})
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("  한글 본문 text\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	res, err := f.ReadText(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if res.Text != "한글 본문 text" || res.PageCount != 1 || res.Stats.Tier != domain.TierDirectText {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := f.ReadText(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); !domain.IsKind(err, domain.ErrDocumentOpen) {
		t.Fatalf("expected document open error, got %v", err)
	}
}
