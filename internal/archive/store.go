// Package archive maintains the durable, deduplicated article archive of a
// spider and merges run directories into it.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/run"
	"github.com/pazars/grabeklis/pkg/utils"
)

const (
	ItemsFile   = "items_all.json"
	FailedFile  = "failed_item_history.json"
	HistoryFile = "history.json"
	SummaryFile = "summary.json"
	StatsFile   = "stats.json"
	MetricsFile = "metrics.prom"
	LockFile    = ".lock"
)

// ErrPersistence marks archive reads and writes that failed.
var ErrPersistence = run.ErrPersistence

// ErrRunNotFound is returned when a run directory does not exist.
var ErrRunNotFound = errors.New("run directory not found")

var runDirPattern = regexp.MustCompile(`^\d{14}$`)

// Store is the on-disk archive of one spider: <data_dir>/<spider>/.
type Store struct {
	dir    string
	policy Policy
	logger *zap.Logger
}

// NewStore opens the archive rooted at dir. The directory is created lazily.
func NewStore(dir string, policy Policy, logger *zap.Logger) *Store {
	if policy == "" {
		policy = PolicyKeepExisting
	}
	return &Store{dir: dir, policy: policy, logger: logger}
}

// Dir is the archive root.
func (s *Store) Dir() string { return s.dir }

// Path joins name onto the archive root.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// RunDir returns the directory of the run started at t.
func (s *Store) RunDir(t time.Time) string {
	return filepath.Join(s.dir, t.In(entity.SiteLocation).Format(run.RunIDLayout))
}

// Runs lists run directory names (YYYYMMDDHHMMSS) in chronological order.
func (s *Store) Runs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", ErrPersistence, err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && runDirPattern.MatchString(e.Name()) {
			runs = append(runs, e.Name())
		}
	}
	slices.Sort(runs)
	return runs, nil
}

// LoadArticles reads items_all.json; a missing file is an empty archive.
func (s *Store) LoadArticles() ([]entity.ArticleRecord, error) {
	return loadList[entity.ArticleRecord](s.Path(ItemsFile))
}

// LoadFailures reads failed_item_history.json.
func (s *Store) LoadFailures() ([]entity.FailureRecord, error) {
	return loadList[entity.FailureRecord](s.Path(FailedFile))
}

// Summary reads summary.json, computing it when absent.
func (s *Store) Summary() (entity.ArchiveSummary, error) {
	var sum entity.ArchiveSummary
	found, err := utils.ReadJSON(s.Path(SummaryFile), &sum)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if found {
		return sum, nil
	}
	return s.writeSummary()
}

func (s *Store) writeSummary() (entity.ArchiveSummary, error) {
	articles, err := s.LoadArticles()
	if err != nil {
		return entity.ArchiveSummary{}, err
	}
	failures, err := s.LoadFailures()
	if err != nil {
		return entity.ArchiveSummary{}, err
	}
	sum := entity.ArchiveSummary{NumArticlesOK: len(articles), NumArticlesFailed: len(failures)}
	if err := save(s.Path(SummaryFile), sum); err != nil {
		return sum, err
	}
	return sum, nil
}

func loadList[T any](path string) ([]T, error) {
	var out []T
	if _, err := utils.ReadJSON(path, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return out, nil
}

func save(path string, v any) error {
	if err := utils.WriteJSONAtomic(path, v, true); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
