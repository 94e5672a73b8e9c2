package entity

// FailureRecord mirrors one entry of the failure archive (failed_item_history.json).
type FailureRecord struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}
