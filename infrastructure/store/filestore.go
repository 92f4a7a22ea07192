package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
)

const (
	runFilePrefix     = "run_"
	runFileSuffix     = ".json"
	runFileTimeFormat = "20060102T150405Z"
)

// FileStore persists task run results as JSON files in a directory, one file
// per run, named by start time so lexical order is chronological order.
type FileStore struct {
	dir    string
	logger *logging.Logger
}

// NewFileStore opens (and creates if needed) the results directory.
func NewFileStore(dir string, logger *logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger.WithComponent("file_store")}, nil
}

// SaveRunResult writes the run result atomically: a temp file in the same
// directory, then a rename, so a crash never leaves a truncated result for
// a later resume to trip over.
func (s *FileStore) SaveRunResult(result *task.TaskRunResult) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}

	name := runFilePrefix + result.StartedAt.UTC().Format(runFileTimeFormat) + runFileSuffix
	final := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp result file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write run result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close run result: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish run result: %w", err)
	}

	s.logger.Info("Saved run result", "run_id", result.RunID, "file", final)
	return nil
}

// LatestRunResult loads the most recent run result, or (nil, nil) when the
// directory holds none. Unreadable files are skipped with a warning so one
// corrupt result cannot block resuming from an older good one.
func (s *FileStore) LatestRunResult() (*task.TaskRunResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, runFilePrefix) || !strings.HasSuffix(name, runFileSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		result, err := s.LoadRunResult(name)
		if err != nil {
			s.logger.Warn("Skipping unreadable run result", "file", name, "error", err.Error())
			continue
		}
		return result, nil
	}
	return nil, nil
}

// LoadRunResult loads one run result file by name.
func (s *FileStore) LoadRunResult(name string) (*task.TaskRunResult, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read run result %s: %w", name, err)
	}
	var result task.TaskRunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode run result %s: %w", name, err)
	}
	return &result, nil
}
