package entity

import "time"

// Summary holds the archive counts reported at the end of every run.
type Summary struct {
	NewInOKArchive        int `json:"new_in_ok_archive"`
	SkippedOKDuplicates   int `json:"skipped_ok_duplicates"`
	NewInFailedArchive    int `json:"new_in_failed_archive"`
	SkippedFailDuplicates int `json:"skipped_fail_duplicates"`
}

// RunStats is written next to the run's batches (stats.json).
type RunStats struct {
	RunID          string    `json:"run_id"`
	StartTime      time.Time `json:"start_time_tz"`
	FinishTime     time.Time `json:"finish_time_tz"`
	Watermark      time.Time `json:"watermark"`
	ItemSavedCount int       `json:"item_saved_count"`
	FailedToScrape int       `json:"failed_to_scrape"`
	CloseReason    string    `json:"close_reason"`
	DryRun         bool      `json:"dry_run"`
	Archive        *Summary  `json:"archive,omitempty"`
}

// ArchiveSummary is the archive-level summary.json.
type ArchiveSummary struct {
	NumArticlesOK     int `json:"num_articles_ok"`
	NumArticlesFailed int `json:"num_articles_failed"`
}
