package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/pagenote/internal/contentstore"
	"github.com/xxxsen/pagenote/internal/model"
	"github.com/xxxsen/pagenote/internal/repo"
)

// Snapshot is the document written by the backup job.
type Snapshot struct {
	GeneratedAt int64            `json:"generated_at"`
	Notebooks   []model.Notebook `json:"notebooks"`
}

// BackupJob dumps every notebook record into the content store once per run
// and prunes snapshots older than keepDays.
type BackupJob struct {
	notebooks *repo.NotebookRepo
	store     contentstore.Store
	keepDays  int
	now       func() time.Time
}

func NewBackupJob(notebooks *repo.NotebookRepo, store contentstore.Store, keepDays int) *BackupJob {
	return &BackupJob{notebooks: notebooks, store: store, keepDays: keepDays, now: time.Now}
}

func (j *BackupJob) Name() string {
	return "notebook_backup"
}

func (j *BackupJob) Run(ctx context.Context) error {
	if j.notebooks == nil || j.store == nil {
		return nil
	}
	now := j.now()
	items, err := j.notebooks.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list notebooks: %w", err)
	}
	data, err := json.Marshal(Snapshot{GeneratedAt: now.UnixMilli(), Notebooks: items})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := contentstore.BackupKey(now)
	if err := j.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	logutil.GetLogger(ctx).Info("notebook snapshot written",
		zap.String("key", key), zap.Int("notebooks", len(items)), zap.Int("bytes", len(data)))
	return j.prune(ctx, now)
}

func (j *BackupJob) prune(ctx context.Context, now time.Time) error {
	if j.keepDays <= 0 {
		return nil
	}
	objects, err := j.store.List(ctx, contentstore.BackupPrefix())
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	cutoff := now.UTC().AddDate(0, 0, -j.keepDays)
	for _, obj := range objects {
		day, ok := snapshotDay(obj.Key)
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, obj.Key); err != nil {
			logutil.GetLogger(ctx).Warn("delete snapshot failed", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		logutil.GetLogger(ctx).Info("snapshot pruned", zap.String("key", obj.Key))
	}
	return nil
}

func snapshotDay(key string) (time.Time, bool) {
	name := strings.TrimPrefix(key, contentstore.BackupPrefix())
	name = strings.TrimSuffix(strings.TrimPrefix(name, "notebooks-"), ".json")
	day, err := time.Parse("20060102", name)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
