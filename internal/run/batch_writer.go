package run

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/pkg/utils"
)

// BatchPrefix starts the name of every batch file in a run directory.
const BatchPrefix = "batch_articles_"

// FailedItemsFile holds the failures of a single run.
const FailedItemsFile = "run_failed_items.json"

// BatchWriter persists a flushed batch of articles and returns where it went.
type BatchWriter interface {
	WriteBatch(records []entity.ArticleRecord) (string, error)
	WriteFailures(records []entity.FailureRecord) (string, error)
}

// FileBatchWriter writes batches as JSON files into a run directory.
type FileBatchWriter struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	seq int
}

// NewFileBatchWriter writes into dir, creating it on first use.
func NewFileBatchWriter(dir string) *FileBatchWriter {
	return &FileBatchWriter{dir: dir, now: time.Now}
}

// Dir returns the run directory.
func (w *FileBatchWriter) Dir() string {
	return w.dir
}

// WriteBatch writes batch_articles_<YYYYMMDDHHMMSS>_<seq>.json. The sequence
// number keeps names unique when two flushes land in the same second.
func (w *FileBatchWriter) WriteBatch(records []entity.ArticleRecord) (string, error) {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	stamp := w.now().In(entity.SiteLocation).Format(RunIDLayout)
	path := filepath.Join(w.dir, fmt.Sprintf("%s%s_%04d.json", BatchPrefix, stamp, seq))
	if err := utils.WriteJSONAtomic(path, records, true); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFailures writes the run's failure list.
func (w *FileBatchWriter) WriteFailures(records []entity.FailureRecord) (string, error) {
	path := filepath.Join(w.dir, FailedItemsFile)
	if err := utils.WriteJSONAtomic(path, records, true); err != nil {
		return "", err
	}
	return path, nil
}

// DiscardWriter drops everything; used for dry runs.
type DiscardWriter struct{}

func (DiscardWriter) WriteBatch([]entity.ArticleRecord) (string, error) { return "", nil }
func (DiscardWriter) WriteFailures([]entity.FailureRecord) (string, error) { return "", nil }
