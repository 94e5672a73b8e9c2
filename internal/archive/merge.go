package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/run"
)

// Policy decides which record survives when two records share a URL but differ.
type Policy string

const (
	// PolicyKeepExisting keeps the record that was archived first.
	PolicyKeepExisting Policy = "keep_existing"
	// PolicyReplace lets the newest record win.
	PolicyReplace Policy = "replace"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyKeepExisting, nil
	case PolicyKeepExisting, PolicyReplace:
		return p, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// MergeReport describes the outcome of merging one run.
type MergeReport struct {
	Run              string
	Summary          entity.Summary
	Replaced         int
	ReplacedFailures int
	ArticlesTotal    int
	FailuresTotal    int
	Watermark        time.Time
}

// MergeRun merges the batches and failure list of runDir into the archive and
// refreshes history.json and summary.json. Merging the same run again leaves
// the archive unchanged. now bounds the reported watermark.
func (s *Store) MergeRun(runDir string, now time.Time) (MergeReport, error) {
	report := MergeReport{Run: filepath.Base(runDir)}

	info, err := os.Stat(runDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return report, fmt.Errorf("%w: %s", ErrRunNotFound, runDir)
	case err != nil:
		return report, fmt.Errorf("%w: %w", ErrPersistence, err)
	case !info.IsDir():
		return report, fmt.Errorf("%w: %s is not a directory", ErrRunNotFound, runDir)
	}

	existing, err := s.LoadArticles()
	if err != nil {
		return report, err
	}
	incoming, err := loadBatches(runDir)
	if err != nil {
		return report, err
	}
	articles, added, replaced := mergeByURL(existing, incoming, articleURL, entity.ArticleRecord.Equal, s.policy)
	report.Summary.NewInOKArchive = added
	report.Summary.SkippedOKDuplicates = len(incoming) - added
	report.Replaced = replaced
	report.ArticlesTotal = len(articles)

	existingFailures, err := s.LoadFailures()
	if err != nil {
		return report, err
	}
	incomingFailures, err := loadList[entity.FailureRecord](filepath.Join(runDir, run.FailedItemsFile))
	if err != nil {
		return report, err
	}
	failures, addedFailures, replacedFailures := mergeByURL(existingFailures, incomingFailures, failureURL, equalFailure, s.policy)
	report.Summary.NewInFailedArchive = addedFailures
	report.Summary.SkippedFailDuplicates = len(incomingFailures) - addedFailures
	report.ReplacedFailures = replacedFailures
	report.FailuresTotal = len(failures)

	if err := save(s.Path(ItemsFile), articles); err != nil {
		return report, err
	}
	if err := save(s.Path(FailedFile), failures); err != nil {
		return report, err
	}
	if err := s.refresh(articles, failures); err != nil {
		return report, err
	}
	report.Watermark = watermark(articles, now)

	s.logger.Info("Merged run into archive",
		zap.String("run", report.Run),
		zap.Int("new_in_ok_archive", report.Summary.NewInOKArchive),
		zap.Int("skipped_ok_duplicates", report.Summary.SkippedOKDuplicates),
		zap.Int("new_in_failed_archive", report.Summary.NewInFailedArchive),
		zap.Int("skipped_fail_duplicates", report.Summary.SkippedFailDuplicates),
		zap.Int("replaced", report.Replaced),
	)
	return report, nil
}

// MergeAll merges every run directory, oldest first.
func (s *Store) MergeAll(now time.Time) ([]MergeReport, error) {
	runs, err := s.Runs()
	if err != nil {
		return nil, err
	}
	reports := make([]MergeReport, 0, len(runs))
	for _, r := range runs {
		rep, err := s.MergeRun(filepath.Join(s.dir, r), now)
		if err != nil {
			return reports, fmt.Errorf("merge run %s: %w", r, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func loadBatches(runDir string) ([]entity.ArticleRecord, error) {
	paths, err := filepath.Glob(filepath.Join(runDir, run.BatchPrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: list batches: %w", ErrPersistence, err)
	}
	slices.Sort(paths)

	var all []entity.ArticleRecord
	for _, p := range paths {
		batch, err := loadList[entity.ArticleRecord](p)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// mergeByURL appends incoming onto existing keeping one record per URL, in
// first-occurrence order. Identical records always collapse; differing ones
// follow policy. added is the growth of the deduplicated existing list.
func mergeByURL[T any](existing, incoming []T, key func(T) string, equal func(T, T) bool, policy Policy) (merged []T, added, replaced int) {
	merged = make([]T, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	put := func(rec T) bool {
		k := key(rec)
		i, ok := index[k]
		if !ok {
			index[k] = len(merged)
			merged = append(merged, rec)
			return true
		}
		if policy == PolicyReplace && !equal(merged[i], rec) {
			merged[i] = rec
			replaced++
		}
		return false
	}

	for _, rec := range existing {
		put(rec)
	}
	base := len(merged)
	replaced = 0
	for _, rec := range incoming {
		put(rec)
	}
	return merged, len(merged) - base, replaced
}

func articleURL(a entity.ArticleRecord) string { return a.URL }

func failureURL(f entity.FailureRecord) string { return f.URL }

func equalFailure(a, b entity.FailureRecord) bool { return a == b }
