package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DirSource turns *.json files dropped in an inbox directory into jobs. A
// file holds one job object or an array of them. Processed files move to
// done/, unreadable ones to failed/. Writers should create the file under
// another name and rename it into the inbox.
type DirSource struct {
	dir string
	log *zap.Logger
}

func NewDirSource(dir string, log *zap.Logger) *DirSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirSource{dir: dir, log: log}
}

// Run drains files already present, then watches for new ones.
func (s *DirSource) Run(ctx context.Context, enqueue EnqueueFunc) error {
	for _, sub := range []string{"done", "failed"} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(existing)
	for _, path := range existing {
		s.consume(ctx, path, enqueue)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if strings.HasSuffix(ev.Name, ".json") {
				s.consume(ctx, ev.Name, enqueue)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (s *DirSource) consume(ctx context.Context, path string, enqueue EnqueueFunc) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return // already moved by an earlier event
	}
	if err != nil {
		s.log.Warn("inbox file unreadable", zap.String("path", path), zap.Error(err))
		return
	}

	jobs, err := decodeJobs(data)
	if err != nil {
		s.log.Warn("inbox file rejected", zap.String("path", path), zap.Error(err))
		s.move(path, "failed")
		return
	}
	for _, job := range jobs {
		if err := enqueue(ctx, job); err != nil {
			s.log.Warn("inbox job not enqueued", zap.String("path", path), zap.String("item_id", job.ItemID), zap.Error(err))
		}
	}
	s.move(path, "done")
}

func (s *DirSource) move(path, sub string) {
	dst := filepath.Join(s.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil && !os.IsNotExist(err) {
		s.log.Warn("inbox file not moved", zap.String("path", path), zap.Error(err))
	}
}

func decodeJobs(data []byte) ([]Job, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var jobs []Job
		if err := json.Unmarshal(data, &jobs); err != nil {
			return nil, fmt.Errorf("decode jobs: %w", err)
		}
		return jobs, nil
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return []Job{job}, nil
}
