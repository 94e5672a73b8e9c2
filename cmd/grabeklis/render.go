package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pazars/grabeklis/internal/archive"
	"github.com/pazars/grabeklis/internal/entity"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(entity.SiteLocation).Format(timeLayout)
}

func renderRunStats(w io.Writer, st entity.RunStats) {
	t := newTable(w, "Run "+st.RunID)
	t.AppendRows([]table.Row{
		{"Started", formatTime(st.StartTime)},
		{"Finished", formatTime(st.FinishTime)},
		{"Watermark", formatTime(st.Watermark)},
		{"Close reason", st.CloseReason},
		{"Dry run", st.DryRun},
		{"Items saved", st.ItemSavedCount},
		{"Failed to scrape", st.FailedToScrape},
	})
	if st.Archive != nil {
		t.AppendSeparator()
		t.AppendRows(summaryRows(*st.Archive))
	}
	t.Render()
}

func summaryRows(s entity.Summary) []table.Row {
	return []table.Row{
		{"New in OK archive", s.NewInOKArchive},
		{"Skipped OK duplicates", s.SkippedOKDuplicates},
		{"New in failed archive", s.NewInFailedArchive},
		{"Skipped failed duplicates", s.SkippedFailDuplicates},
	}
}

func renderMergeReports(w io.Writer, reports []archive.MergeReport) {
	t := newTable(w, "Merged runs")
	t.AppendHeader(table.Row{"Run", "New OK", "Skipped OK", "Replaced", "New failed", "Skipped failed", "Articles", "Failures"})
	for _, r := range reports {
		t.AppendRow(table.Row{
			r.Run,
			r.Summary.NewInOKArchive,
			r.Summary.SkippedOKDuplicates,
			r.Replaced,
			r.Summary.NewInFailedArchive,
			r.Summary.SkippedFailDuplicates,
			r.ArticlesTotal,
			r.FailuresTotal,
		})
	}
	t.Render()
}

func renderArchiveSummary(w io.Writer, s entity.ArchiveSummary) {
	t := newTable(w, "Archive")
	t.AppendRows([]table.Row{
		{"Articles", s.NumArticlesOK},
		{"Failures", s.NumArticlesFailed},
	})
	t.Render()
}

func renderOverview(w io.Writer, o archive.Overview) {
	t := newTable(w, "Archive")
	t.AppendRows([]table.Row{
		{"Articles", o.Articles},
		{"Failures", o.Failures},
		{"Runs", o.Runs},
		{"Latest run", o.LatestRun},
		{"Watermark", formatTime(o.Watermark)},
	})
	t.Render()

	if len(o.Categories) == 0 {
		return
	}
	c := newTable(w, "Categories")
	c.AppendHeader(table.Row{"Category", "Articles"})
	for _, cc := range o.Categories {
		c.AppendRow(table.Row{cc.Category, cc.Count})
	}
	c.AppendFooter(table.Row{"Total", o.Articles})
	c.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
