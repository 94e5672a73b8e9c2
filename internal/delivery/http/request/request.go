package request

import "github.com/pazars/grabeklis/internal/usecase"

// TriggerCrawlRequest is the optional body of POST /api/crawl.
type TriggerCrawlRequest struct {
	MaxItems int  `json:"max_items"`
	DryRun   bool `json:"dry_run"`
}

// RunRequest converts the body into use case overrides.
func (r TriggerCrawlRequest) RunRequest() usecase.RunRequest {
	return usecase.RunRequest{MaxItems: r.MaxItems, DryRun: r.DryRun}
}
