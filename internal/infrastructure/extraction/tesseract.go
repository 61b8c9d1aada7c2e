package extraction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/sumflow/internal/infrastructure/execx"
)

// Recognition is the recognizer output for one page image.
type Recognition struct {
	Text       string
	Confidence *float64
}

// Recognizer runs optical recognition on a single page image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath, lang string, psm int) (Recognition, error)
}

// Tesseract runs the tesseract CLI in TSV mode and rebuilds text from word rows.
type Tesseract struct {
	bin         string
	tessdataDir string
	runner      execx.Runner
}

func NewTesseract(bin, tessdataDir string, runner execx.Runner) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	return &Tesseract{bin: bin, tessdataDir: tessdataDir, runner: runner}
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath, lang string, psm int) (Recognition, error) {
	args := []string{imagePath, "stdout", "-l", lang, "--oem", "1", "--psm", strconv.Itoa(psm)}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	args = append(args, "tsv")

	out, stderr, err := t.runner.Run(ctx, t.bin, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	return parseTSV(string(out)), nil
}

const (
	tsvLevel = iota
	tsvPage
	tsvBlock
	tsvPar
	tsvLine
	tsvWord
	tsvLeft
	tsvTop
	tsvWidth
	tsvHeight
	tsvConf
	tsvText
	tsvColumns
)

// parseTSV joins word rows into lines and paragraphs and averages non-negative word confidences.
func parseTSV(raw string) Recognition {
	var (
		b        strings.Builder
		sum      float64
		n        int
		lastPar  string
		lastLine string
	)
	for i, ln := range strings.Split(raw, "\n") {
		if i == 0 || strings.TrimSpace(ln) == "" {
			continue
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvColumns || cols[tsvLevel] != "5" {
			continue
		}

		if conf, err := strconv.ParseFloat(cols[tsvConf], 64); err == nil && conf >= 0 {
			sum += conf
			n++
		}

		word := strings.TrimSpace(cols[tsvText])
		if word == "" {
			continue
		}
		par := cols[tsvPage] + "/" + cols[tsvBlock] + "/" + cols[tsvPar]
		line := par + "/" + cols[tsvLine]
		switch {
		case b.Len() == 0:
		case par != lastPar:
			b.WriteString("\n\n")
		case line != lastLine:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		lastPar, lastLine = par, line
	}

	rec := Recognition{Text: b.String()}
	if n > 0 {
		avg := sum / float64(n)
		rec.Confidence = &avg
	}
	return rec
}
