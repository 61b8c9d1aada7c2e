package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// ResultStore writes task results under <dir>/<batch>/:
// <task>.json, <task>/llm/summary.txt and <task>/meta.json.
// Batch manifests live at <dir>/<batch>.json.
type ResultStore struct {
	dir string
}

func NewResultStore(dir string) (*ResultStore, error) {
	if dir == "" {
		dir = "./data/results"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve result dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}
	return &ResultStore{dir: abs}, nil
}

func checkIDs(ids ...string) error {
	for _, id := range ids {
		if !ValidID(id) {
			return domain.WrapError(domain.ErrInvalidInput, "result store", fmt.Errorf("invalid id %q", id))
		}
	}
	return nil
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.TaskResult) error {
	if err := checkIDs(result.BatchID, result.TaskID); err != nil {
		return err
	}
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	batchDir := filepath.Join(s.dir, result.BatchID)
	taskDir := filepath.Join(batchDir, result.TaskID)
	writes := []struct {
		path string
		data []byte
	}{
		{filepath.Join(batchDir, result.TaskID+".json"), body},
		{filepath.Join(taskDir, "llm", "summary.txt"), []byte(result.Summary)},
		{filepath.Join(taskDir, "meta.json"), body},
	}
	for _, w := range writes {
		if err := writeAtomic(w.path, copyBytes(w.data)); err != nil {
			return domain.WrapError(domain.ErrPersistence, "save result", err)
		}
	}
	return nil
}

func (s *ResultStore) LoadResult(_ context.Context, batchID, taskID string) (*domain.TaskResult, error) {
	if err := checkIDs(batchID, taskID); err != nil {
		return nil, err
	}
	var result domain.TaskResult
	if err := readJSON(filepath.Join(s.dir, batchID, taskID+".json"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ResultStore) ListResults(ctx context.Context, batchID string) ([]domain.TaskResult, error) {
	if err := checkIDs(batchID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, batchID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.TaskResult{}, nil
		}
		return nil, fmt.Errorf("read batch results: %w", err)
	}

	out := make([]domain.TaskResult, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		result, err := s.LoadResult(ctx, batchID, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, *result)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out, nil
}

func (s *ResultStore) SaveBatchMeta(_ context.Context, meta domain.BatchMeta) error {
	if err := checkIDs(meta.BatchID); err != nil {
		return err
	}
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch meta: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, meta.BatchID+".json"), copyBytes(body)); err != nil {
		return domain.WrapError(domain.ErrPersistence, "save batch meta", err)
	}
	return nil
}

func (s *ResultStore) LoadBatchMeta(_ context.Context, batchID string) (*domain.BatchMeta, error) {
	if err := checkIDs(batchID); err != nil {
		return nil, err
	}
	var meta domain.BatchMeta
	if err := readJSON(filepath.Join(s.dir, batchID+".json"), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func readJSON(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.WrapError(domain.ErrTaskNotFound, "read "+filepath.Base(path), err)
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyBytes(data []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	}
}
