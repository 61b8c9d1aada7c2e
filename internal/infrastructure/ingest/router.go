package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// PDFRenderer renders an office document into a PDF at dst.
type PDFRenderer interface {
	Available() bool
	RenderPDF(ctx context.Context, src, dst string) error
}

// TextConverter pulls plain text out of a document with an external utility.
type TextConverter interface {
	Available() bool
	ExtractText(ctx context.Context, src string) (string, error)
}

// Router maps a source file to an IngestDecision. Work products land in workDir
// as <base>.<sha12>.<ext>, so identical content resolves to the same artifact.
type Router struct {
	workDir     string
	hwp         TextConverter
	renderer    PDFRenderer
	readDocx    func(path string) (string, error)
	validatePDF func(path string) (int, error)
}

// NewRouter builds a router. A nil hwp or renderer means that backend is disabled.
func NewRouter(workDir string, hwp TextConverter, renderer PDFRenderer) (*Router, error) {
	if workDir == "" {
		workDir = "./data/work"
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Router{
		workDir:     workDir,
		hwp:         hwp,
		renderer:    renderer,
		readDocx:    ReadDocxText,
		validatePDF: ValidatePDF,
	}, nil
}

// Supported reports whether the extension has any route at all.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".hwp":
		return true
	default:
		return false
	}
}

func (r *Router) Route(ctx context.Context, path string) (domain.IngestDecision, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return domain.IngestDecision{
			Route:        domain.RoutePassThrough,
			ArtifactPath: path,
			Notes:        []string{"pdf->pdf(pass-through)"},
		}, nil
	case ".docx":
		return r.routeDocx(ctx, path)
	case ".hwp":
		return r.routeHWP(ctx, path)
	default:
		return domain.IngestDecision{}, domain.WrapError(domain.ErrUnsupportedFormat, "route", fmt.Errorf("extension %q", ext))
	}
}

func (r *Router) routeDocx(ctx context.Context, path string) (domain.IngestDecision, error) {
	txtPath, pdfPath, err := r.artifactPaths(path)
	if err != nil {
		return domain.IngestDecision{}, err
	}

	directErr := r.writeText(txtPath, func() (string, error) { return r.readDocx(path) })
	if directErr == nil {
		return domain.IngestDecision{
			Route:        domain.RouteDirectText,
			ArtifactPath: txtPath,
			Notes:        []string{"docx->text"},
		}, nil
	}
	if domain.IsKind(directErr, domain.ErrPersistence) {
		return domain.IngestDecision{}, fmt.Errorf("route docx: %w", directErr)
	}
	slog.Warn("docx_direct_text_failed", "path", path, "error", directErr)

	if r.rendererReady() {
		return r.render(ctx, path, pdfPath, "docx->pdf(soffice)", directErr)
	}
	return domain.IngestDecision{}, domain.WrapError(domain.ErrCapabilityUnavailable, "route docx", directErr)
}

func (r *Router) routeHWP(ctx context.Context, path string) (domain.IngestDecision, error) {
	txtPath, pdfPath, err := r.artifactPaths(path)
	if err != nil {
		return domain.IngestDecision{}, err
	}

	var directErr error
	if r.hwp != nil && r.hwp.Available() {
		directErr = r.writeText(txtPath, func() (string, error) { return r.hwp.ExtractText(ctx, path) })
		if directErr == nil {
			return domain.IngestDecision{
				Route:        domain.RouteDirectText,
				ArtifactPath: txtPath,
				Notes:        []string{"hwp->text(hwp5txt)"},
			}, nil
		}
		if domain.IsKind(directErr, domain.ErrPersistence) {
			return domain.IngestDecision{}, fmt.Errorf("route hwp: %w", directErr)
		}
		slog.Warn("hwp_direct_text_failed", "path", path, "error", directErr)
	}

	if r.rendererReady() {
		return r.render(ctx, path, pdfPath, "hwp->pdf(soffice)", directErr)
	}
	if directErr == nil {
		directErr = errors.New("text converter and renderer disabled")
	}
	return domain.IngestDecision{}, domain.WrapError(domain.ErrCapabilityUnavailable, "route hwp", directErr)
}

func (r *Router) rendererReady() bool {
	return r.renderer != nil && r.renderer.Available()
}

func (r *Router) render(ctx context.Context, src, dst, note string, cause error) (domain.IngestDecision, error) {
	notes := []string{note}
	if cause != nil {
		notes = append(notes, "fallback: "+cause.Error())
	}

	if !fileReady(dst) {
		if err := r.renderer.RenderPDF(ctx, src, dst); err != nil {
			return domain.IngestDecision{}, fmt.Errorf("render pdf: %w", err)
		}
	} else {
		notes = append(notes, "cached")
	}

	pages, err := r.validatePDF(dst)
	if err != nil {
		_ = os.Remove(dst)
		return domain.IngestDecision{}, domain.WrapError(domain.ErrDocumentOpen, "validate rendered pdf", err)
	}
	notes = append(notes, fmt.Sprintf("pages=%d", pages))

	return domain.IngestDecision{
		Route:        domain.RouteRenderThenRecognize,
		ArtifactPath: dst,
		Notes:        notes,
	}, nil
}

// writeText produces the text artifact at dst. Each writer goes through its
// own temp file, so concurrent tasks with identical content never collide.
// Producer failures are returned as is; artifact I/O failures are
// ErrPersistence.
func (r *Router) writeText(dst string, produce func() (string, error)) error {
	if fileReady(dst) {
		return nil
	}
	text, err := produce()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("no text extracted")
	}
	if err := commitArtifact(dst, []byte(text)); err != nil {
		if fileReady(dst) {
			return nil
		}
		return domain.WrapError(domain.ErrPersistence, "write text artifact", err)
	}
	return nil
}

func commitArtifact(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

func (r *Router) artifactPaths(path string) (txtPath, pdfPath string, err error) {
	sum, err := shortDigest(path)
	if err != nil {
		return "", "", domain.WrapError(domain.ErrDocumentOpen, "hash source", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem := filepath.Join(r.workDir, base+"."+sum)
	return stem + ".txt", stem + ".pdf", nil
}

func shortDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:12], nil
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
