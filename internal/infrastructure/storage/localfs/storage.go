package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// Storage stages uploads under <base>/<batch>/ and relocates processed
// sources to their normalized stored name in the same batch directory.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

func (s *Storage) batchDir(batchID string) (string, error) {
	if !ValidID(batchID) {
		return "", domain.WrapError(domain.ErrInvalidInput, "storage", fmt.Errorf("invalid batch id %q", batchID))
	}
	return filepath.Join(s.basePath, batchID), nil
}

func (s *Storage) SaveStaged(_ context.Context, batchID, filename string, body io.Reader) (domain.SourceFile, error) {
	dir, err := s.batchDir(batchID)
	if err != nil {
		return domain.SourceFile{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.SourceFile{}, fmt.Errorf("create batch dir: %w", err)
	}

	f, path, err := createUnique(dir, SanitizeUploadName(filename))
	if err != nil {
		return domain.SourceFile{}, err
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return domain.SourceFile{}, fmt.Errorf("write staged file: %w", err)
	}

	display := strings.TrimSpace(filepath.Base(strings.ReplaceAll(filename, `\`, "/")))
	if display == "" || display == "." || display == "/" {
		display = filepath.Base(path)
	}
	return domain.SourceFile{
		Path:        path,
		Filename:    display,
		ContentHash: hex.EncodeToString(hash.Sum(nil))[:12],
		Size:        size,
		BatchID:     batchID,
	}, nil
}

// createUnique opens name in dir, appending _1, _2, ... to the stem when taken.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "_" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create staged file: %w", err)
		}
	}
}

func (s *Storage) storedPath(src domain.SourceFile) (string, string, error) {
	dir, err := s.batchDir(src.BatchID)
	if err != nil {
		return "", "", err
	}
	name := StoredName(src.Filename, src.ContentHash, src.BatchID)
	return name, filepath.Join(dir, name), nil
}

func (s *Storage) Locate(_ context.Context, src domain.SourceFile) (string, error) {
	if fileExists(src.Path) {
		return src.Path, nil
	}
	_, dst, err := s.storedPath(src)
	if err != nil {
		return "", err
	}
	if fileExists(dst) {
		return dst, nil
	}
	return "", domain.WrapError(domain.ErrDocumentOpen, "locate source", fmt.Errorf("%s not found", src.Path))
}

// Relocate moves the staged source to its stored name. A source that is
// already gone while the stored file exists counts as relocated. Only
// src.Path is touched: staged names are de-duplicated, so a sibling with the
// same display name belongs to another task.
func (s *Storage) Relocate(_ context.Context, src domain.SourceFile) (string, string, error) {
	name, dst, err := s.storedPath(src)
	if err != nil {
		return "", "", err
	}

	if filepath.Clean(src.Path) != dst {
		switch {
		case fileExists(src.Path):
			if err := moveFile(src.Path, dst); err != nil {
				return "", "", domain.WrapError(domain.ErrPersistence, "relocate source", err)
			}
		case fileExists(dst):
		default:
			return "", "", domain.WrapError(domain.ErrPersistence, "relocate source", fmt.Errorf("%s not found", src.Path))
		}
	}
	return name, dst, nil
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	// Cross-device: copy then remove the source.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	if err := writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	return os.Remove(src)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeAtomic writes through a temp file in the destination directory and renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
