package sitemap

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pazars/grabeklis/internal/entity"
)

// SubSitemapMarker identifies weekly sub-sitemap URLs.
const SubSitemapMarker = "/assets/"

var weekPattern = regexp.MustCompile(`_(\d{4})W(\d+)\.xml`)

// HistorySet is the set of URLs already present in the archive.
type HistorySet map[string]struct{}

// NewHistorySet builds a set from a list of URLs.
func NewHistorySet(urls []string) HistorySet {
	h := make(HistorySet, len(urls))
	for _, u := range urls {
		h[u] = struct{}{}
	}
	return h
}

// Contains reports whether url is in the set.
func (h HistorySet) Contains(url string) bool {
	_, ok := h[url]
	return ok
}

// Filter selects the sitemap entries that may hold articles newer than the watermark.
type Filter struct {
	history   HistorySet
	watermark time.Time
}

// NewFilter creates a filter. A nil history is treated as empty.
func NewFilter(history HistorySet, watermark time.Time) *Filter {
	if history == nil {
		history = HistorySet{}
	}
	return &Filter{history: history, watermark: watermark}
}

// Watermark returns the cut-off the filter compares against.
func (f *Filter) Watermark() time.Time {
	return f.watermark
}

// Eligible reports whether a single entry passes the filter.
//
// Weekly sub-sitemaps are dated by the week encoded in their name because
// their lastmod is bumped whenever any old article changes. Article entries
// are dropped when already archived; an entry without lastmod is kept.
func (f *Filter) Eligible(e entity.SitemapEntry) bool {
	if strings.Contains(e.URL, SubSitemapMarker) {
		ts, ok := WeekTimestamp(e.URL)
		if !ok {
			return false
		}
		return ts.After(f.watermark)
	}

	if f.history.Contains(e.URL) {
		return false
	}
	if e.LastModified == nil {
		return true
	}
	return e.LastModified.After(f.watermark)
}

// Apply lazily yields the eligible entries of entries.
func (f *Filter) Apply(entries iter.Seq[entity.SitemapEntry]) iter.Seq[entity.SitemapEntry] {
	return func(yield func(entity.SitemapEntry) bool) {
		for e := range entries {
			if !f.Eligible(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// WeekTimestamp derives the timestamp of a weekly sub-sitemap such as
// ".../sitemap_2023W41.xml": 23:59:59 on January 1st of the year plus
// seven days per week, in the site's time zone.
func WeekTimestamp(url string) (time.Time, bool) {
	m := weekPattern.FindStringSubmatch(url)
	if m == nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	week, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, time.January, 1+week*7, 23, 59, 59, 0, entity.SiteLocation), true
}
