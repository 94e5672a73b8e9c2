package response

import (
	"time"

	"github.com/pazars/grabeklis/internal/archive"
)

type TriggerCrawlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type CategoryCountResponse struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ArchiveStatsResponse is a DTO for archive.Overview.
type ArchiveStatsResponse struct {
	Articles   int                     `json:"articles"`
	Failures   int                     `json:"failures"`
	Runs       int                     `json:"runs"`
	LatestRun  string                  `json:"latest_run,omitempty"`
	Watermark  time.Time               `json:"watermark"`
	Categories []CategoryCountResponse `json:"categories"`
}

func NewArchiveStatsResponse(o archive.Overview) ArchiveStatsResponse {
	resp := ArchiveStatsResponse{
		Articles:   o.Articles,
		Failures:   o.Failures,
		Runs:       o.Runs,
		LatestRun:  o.LatestRun,
		Watermark:  o.Watermark,
		Categories: make([]CategoryCountResponse, 0, len(o.Categories)),
	}
	for _, c := range o.Categories {
		resp.Categories = append(resp.Categories, CategoryCountResponse{Category: c.Category, Count: c.Count})
	}
	return resp
}
