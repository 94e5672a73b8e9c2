package entity

// DateForm records which surface form of the site's date label produced a publish date.
type DateForm string

const (
	DateAbsolute       DateForm = "absolute"
	DateAbsoluteNoYear DateForm = "absolute_no_year"
	DateToday          DateForm = "today"
	DateYesterday      DateForm = "yesterday"
)

// Relative reports whether the date was resolved against the download time
// ("Šodien", "Vakar") and is therefore ambiguous around midnight.
func (f DateForm) Relative() bool {
	return f == DateToday || f == DateYesterday
}

// ArticleRecord mirrors one entry of the success archive (items_all.json).
// JSON keys keep the archive's historical Latvian names.
type ArticleRecord struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	PublishedAt Datums   `json:"datums"`
	DateForm    DateForm `json:"datuma_forma,omitempty"`
	Category    string   `json:"kategorija"`
	Title       string   `json:"virsraksts"`
	Summary     string   `json:"kopsavilkums"`
	Body        string   `json:"raksts"`
}

// Equal reports whether every field of a and b matches.
func (a ArticleRecord) Equal(b ArticleRecord) bool {
	return a.ID == b.ID &&
		a.URL == b.URL &&
		a.PublishedAt.Equal(b.PublishedAt.Time) &&
		a.DateForm == b.DateForm &&
		a.Category == b.Category &&
		a.Title == b.Title &&
		a.Summary == b.Summary &&
		a.Body == b.Body
}

// Size is a rough estimate of the record's in-memory footprint in bytes.
func (a ArticleRecord) Size() int {
	const overhead = 8 * 16
	return overhead + len(a.ID) + len(a.URL) + len(a.DateForm) +
		len(a.Category) + len(a.Title) + len(a.Summary) + len(a.Body)
}
