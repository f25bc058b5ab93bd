package usage

import (
	"container/heap"
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/pcsuccession/agent/internal/models"
)

// Access types reported in FileAccess records.
const (
	AccessRead  = "read"
	AccessWrite = "write"
)

// FileTracker reports files under the configured roots whose access time
// moved since the previous scan. Access times depend on the filesystem
// (noatime and relatime mounts under-report reads), so results are
// best-effort.
type FileTracker struct {
	roots    []string
	maxDepth int
	maxItems int
	logger   *zap.Logger
}

// NewFileTracker creates a tracker. With no roots, Recent always returns an
// empty list.
func NewFileTracker(roots []string, maxDepth, maxItems int, logger *zap.Logger) *FileTracker {
	return &FileTracker{
		roots:    roots,
		maxDepth: maxDepth,
		maxItems: maxItems,
		logger:   logger.Named("files"),
	}
}

// Recent returns up to maxItems files accessed after since, most recent first.
// At most maxItems matches are held in memory during the walk.
func (f *FileTracker) Recent(ctx context.Context, since time.Time) []models.FileAccess {
	set := &recentSet{limit: f.maxItems}
	for _, root := range f.roots {
		if ctx.Err() != nil {
			break
		}
		f.scan(ctx, root, since, set)
	}

	out := set.items
	if out == nil {
		out = make([]models.FileAccess, 0)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	for i := range out {
		if mt, err := mimetype.DetectFile(out[i].FilePath); err == nil {
			out[i].ContentType = mt.String()
		}
	}
	return out
}

func (f *FileTracker) scan(ctx context.Context, root string, since time.Time, set *recentSet) {
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			if f.maxDepth > 0 && strings.Count(path, string(filepath.Separator))-rootDepth >= f.maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ts, err := times.Stat(path)
		if err != nil {
			return nil
		}
		accessed := ts.AccessTime()
		if !accessed.After(since) {
			return nil
		}
		kind := AccessRead
		if ts.ModTime().After(since) {
			kind = AccessWrite
		}
		set.offer(models.FileAccess{
			FilePath:     path,
			LastAccessed: accessed.UTC(),
			AccessType:   kind,
		})
		return nil
	})
	if err != nil && ctx.Err() == nil {
		f.logger.Warn("File access scan failed", zap.String("root", root), zap.Error(err))
	}
}

// recentSet keeps the most recently accessed files seen so far, up to limit
// (no limit when limit <= 0). It is a min-heap on LastAccessed, so the oldest
// kept entry is evicted first.
type recentSet struct {
	items []models.FileAccess
	limit int
}

func (r *recentSet) offer(fa models.FileAccess) {
	if r.limit <= 0 || len(r.items) < r.limit {
		heap.Push(r, fa)
		return
	}
	if fa.LastAccessed.After(r.items[0].LastAccessed) {
		r.items[0] = fa
		heap.Fix(r, 0)
	}
}

func (r *recentSet) Len() int { return len(r.items) }

func (r *recentSet) Less(i, j int) bool {
	return r.items[i].LastAccessed.Before(r.items[j].LastAccessed)
}

func (r *recentSet) Swap(i, j int) { r.items[i], r.items[j] = r.items[j], r.items[i] }

func (r *recentSet) Push(x any) { r.items = append(r.items, x.(models.FileAccess)) }

func (r *recentSet) Pop() any {
	last := r.items[len(r.items)-1]
	r.items = r.items[:len(r.items)-1]
	return last
}
