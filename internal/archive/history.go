package archive

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/pkg/utils"
)

// DefaultWatermark is used when the archive holds no usable publish dates.
var DefaultWatermark = time.Date(1990, time.January, 1, 0, 0, 0, 0, entity.SiteLocation)

// LoadHistory returns the archived URLs, rebuilding history.json from the
// archive when it is missing.
func (s *Store) LoadHistory() ([]string, error) {
	urls, found, err := s.readHistory()
	if err != nil || found {
		return urls, err
	}
	s.logger.Info("History file missing, rebuilding from archive", zap.String("dir", s.dir))
	return s.RebuildHistory()
}

// History is LoadHistory without writes: a missing history.json is derived
// from items_all.json in memory.
func (s *Store) History() ([]string, error) {
	urls, found, err := s.readHistory()
	if err != nil || found {
		return urls, err
	}
	articles, err := s.LoadArticles()
	if err != nil {
		return nil, err
	}
	return historyOf(articles), nil
}

func (s *Store) readHistory() ([]string, bool, error) {
	var urls []string
	found, err := utils.ReadJSON(s.Path(HistoryFile), &urls)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return urls, found, nil
}

// RebuildHistory rewrites history.json and summary.json from the archive.
func (s *Store) RebuildHistory() ([]string, error) {
	articles, err := s.LoadArticles()
	if err != nil {
		return nil, err
	}
	failures, err := s.LoadFailures()
	if err != nil {
		return nil, err
	}
	if err := s.refresh(articles, failures); err != nil {
		return nil, err
	}
	return historyOf(articles), nil
}

func (s *Store) refresh(articles []entity.ArticleRecord, failures []entity.FailureRecord) error {
	if err := save(s.Path(HistoryFile), historyOf(articles)); err != nil {
		return err
	}
	return save(s.Path(SummaryFile), entity.ArchiveSummary{
		NumArticlesOK:     len(articles),
		NumArticlesFailed: len(failures),
	})
}

func historyOf(articles []entity.ArticleRecord) []string {
	urls := make([]string, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.URL]; ok {
			continue
		}
		seen[a.URL] = struct{}{}
		urls = append(urls, a.URL)
	}
	return urls
}

// Watermark is the latest absolute publish date in the archive that is not in
// the future relative to now. Dates resolved from "Šodien"/"Vakar" are ignored.
func (s *Store) Watermark(now time.Time) (time.Time, error) {
	articles, err := s.LoadArticles()
	if err != nil {
		return time.Time{}, err
	}
	return watermark(articles, now), nil
}

func watermark(articles []entity.ArticleRecord, now time.Time) time.Time {
	wm := DefaultWatermark
	for _, a := range articles {
		if a.DateForm.Relative() || a.PublishedAt.IsZero() {
			continue
		}
		if a.PublishedAt.After(now) {
			continue
		}
		if a.PublishedAt.After(wm) {
			wm = a.PublishedAt.Time
		}
	}
	return wm.In(entity.SiteLocation)
}

// PruneFailed drops failures whose URL has since been archived successfully
// and returns how many were removed.
func (s *Store) PruneFailed() (int, error) {
	articles, err := s.LoadArticles()
	if err != nil {
		return 0, err
	}
	failures, err := s.LoadFailures()
	if err != nil {
		return 0, err
	}
	ok := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		ok[a.URL] = struct{}{}
	}
	kept := slices.DeleteFunc(slices.Clone(failures), func(f entity.FailureRecord) bool {
		_, archived := ok[f.URL]
		return archived
	})
	removed := len(failures) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := save(s.Path(FailedFile), kept); err != nil {
		return 0, err
	}
	if err := s.refresh(articles, kept); err != nil {
		return 0, err
	}
	s.logger.Info("Pruned failures archived successfully", zap.Int("removed", removed))
	return removed, nil
}

// CategoryCount is the number of archived articles in one category.
type CategoryCount struct {
	Category string
	Count    int
}

// Overview summarizes the archive for reporting.
type Overview struct {
	Articles   int
	Failures   int
	Runs       int
	LatestRun  string
	Watermark  time.Time
	Categories []CategoryCount
}

// Overview computes archive statistics as of now.
func (s *Store) Overview(now time.Time) (Overview, error) {
	articles, err := s.LoadArticles()
	if err != nil {
		return Overview{}, err
	}
	failures, err := s.LoadFailures()
	if err != nil {
		return Overview{}, err
	}
	runs, err := s.Runs()
	if err != nil {
		return Overview{}, err
	}

	counts := map[string]int{}
	for _, a := range articles {
		counts[a.Category]++
	}
	cats := make([]CategoryCount, 0, len(counts))
	for _, c := range slices.Sorted(maps.Keys(counts)) {
		cats = append(cats, CategoryCount{Category: c, Count: counts[c]})
	}
	slices.SortStableFunc(cats, func(a, b CategoryCount) int { return cmp.Compare(b.Count, a.Count) })

	st := Overview{
		Articles:   len(articles),
		Failures:   len(failures),
		Runs:       len(runs),
		Watermark:  watermark(articles, now),
		Categories: cats,
	}
	if len(runs) > 0 {
		st.LatestRun = runs[len(runs)-1]
	}
	return st, nil
}
