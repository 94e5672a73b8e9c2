// Package extractor turns a fetched lsm.lv article page into an archive record.
package extractor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/entity"
	"github.com/pazars/grabeklis/internal/localedate"
	"github.com/pazars/grabeklis/pkg/utils"
)

var (
	// ErrNoInformation means an element was missing or held only whitespace.
	ErrNoInformation = errors.New("no information found")
	// ErrDeniedCategory means the page belongs to a content type that is not archived.
	ErrDeniedCategory = errors.New("category is excluded")
	// ErrNoDocument means the fetch engine delivered a page without a parsed document.
	ErrNoDocument = errors.New("page has no document")
)

// DeniedCategories are mostly audio, video or picture content, plus paid articles.
var DeniedCategories = []string{
	"Apmaksāta informācija*",
	"Spilgtākie video",
	"Infografikas",
	"YouTube apskats",
	"Animācijas",
	"Audio",
	"Komiksi un karikatūras",
	"Podkāsti",
	"Raidījumi",
}

// Selectors locate the article parts on a page.
type Selectors struct {
	Category string
	Date     string
	Body     string
	Lead     string
	Title    string
}

// DefaultSelectors match the lsm.lv article layout.
var DefaultSelectors = Selectors{
	Category: "div.info-item.category > a",
	Date:     "div.info-item.time",
	Body:     "div.article__body",
	Lead:     "h2.article-lead",
	Title:    "h1.article-title",
}

// StepError is the diagnostic trace stored in a FailureRecord.
type StepError struct {
	Step     string
	Selector string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Selector, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Extractor applies the hand-written extraction rules to article pages.
type Extractor struct {
	dates     *localedate.Parser
	selectors Selectors
	denied    map[string]struct{}
	logger    *zap.Logger
}

// New creates an Extractor using DefaultSelectors and DeniedCategories.
func New(dates *localedate.Parser, logger *zap.Logger) *Extractor {
	return NewWithSelectors(dates, DefaultSelectors, DeniedCategories, logger)
}

// NewWithSelectors creates an Extractor with custom rules.
func NewWithSelectors(dates *localedate.Parser, sel Selectors, denied []string, logger *zap.Logger) *Extractor {
	set := make(map[string]struct{}, len(denied))
	for _, c := range denied {
		set[c] = struct{}{}
	}
	return &Extractor{
		dates:     dates,
		selectors: sel,
		denied:    set,
		logger:    logger,
	}
}

// Extract returns either a complete ArticleRecord or a FailureRecord, never a partial record.
func (e *Extractor) Extract(page *entity.Page) entity.Result {
	rec, err := e.extract(page)
	if err != nil {
		e.logger.Debug("extraction failed", zap.String("url", page.URL), zap.Error(err))
		return entity.Failed(page.URL, fmt.Errorf("extract %s: %w", page.URL, err))
	}
	return entity.Succeeded(rec)
}

func (e *Extractor) extract(page *entity.Page) (*entity.ArticleRecord, error) {
	if page.Document == nil {
		return nil, ErrNoDocument
	}
	doc := page.Document.Selection

	category, err := e.category(doc)
	if err != nil {
		return nil, err
	}

	published, err := e.publishDate(doc, page)
	if err != nil {
		return nil, err
	}

	body, err := e.body(doc)
	if err != nil {
		return nil, err
	}

	lead, err := e.lead(doc)
	if err != nil {
		return nil, err
	}

	title, err := e.title(doc)
	if err != nil {
		return nil, err
	}

	return &entity.ArticleRecord{
		ID:          utils.HashURL(page.URL),
		URL:         page.URL,
		PublishedAt: entity.NewDatums(published.Time),
		DateForm:    dateForm(published.Form),
		Category:    category,
		Title:       title,
		Summary:     lead,
		Body:        body,
	}, nil
}

func (e *Extractor) category(doc *goquery.Selection) (string, error) {
	sel := e.selectors.Category
	category := Tidy(strings.Join(ownTexts(doc.Find(sel).First()), " "))
	if category == "" {
		return "", &StepError{Step: "category", Selector: sel, Err: ErrNoInformation}
	}
	if _, ok := e.denied[category]; ok {
		return "", &StepError{Step: "category", Selector: sel, Err: fmt.Errorf("%w: %q", ErrDeniedCategory, category)}
	}
	return category, nil
}

func (e *Extractor) publishDate(doc *goquery.Selection, page *entity.Page) (localedate.Parsed, error) {
	sel := e.selectors.Date
	raw := Tidy(strings.Join(ownTexts(doc.Find(sel).First()), " "))
	if raw == "" {
		return localedate.Parsed{}, &StepError{Step: "date", Selector: sel, Err: ErrNoInformation}
	}
	parsed, err := e.dates.Parse(raw, page.StartedAt())
	if err != nil {
		return localedate.Parsed{}, &StepError{Step: "date", Selector: sel, Err: err}
	}
	return parsed, nil
}

// body prefers paragraph and quote text directly under the content container and
// falls back to all text inside child containers for the alternate layout.
func (e *Extractor) body(doc *goquery.Selection) (string, error) {
	sel := e.selectors.Body
	container := doc.Find(sel)

	var parts []string
	container.Children().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "p":
			parts = append(parts, ownTexts(child)...)
		case "blockquote":
			parts = append(parts, ownTexts(child.ChildrenFiltered("p"))...)
		}
	})
	if len(parts) == 0 {
		parts = descendantTexts(container.ChildrenFiltered("div"))
	}

	body := Tidy(strings.Join(parts, " "))
	if body == "" {
		return "", &StepError{Step: "body", Selector: sel, Err: ErrNoInformation}
	}
	return body, nil
}

// lead sometimes sits in a <p> inside or right after the <h2>.
func (e *Extractor) lead(doc *goquery.Selection) (string, error) {
	sel := e.selectors.Lead
	heading := doc.Find(sel)
	following := heading.NextAllFiltered("p")

	var lead string
	if candidates := append(ownTexts(heading), ownTexts(following)...); len(candidates) > 0 {
		lead = candidates[0]
	}
	if utf8.RuneCountInString(Tidy(lead)) < 2 {
		parts := append(descendantTexts(heading), descendantTexts(following)...)
		lead = strings.Join(parts, " ")
	}

	lead = Tidy(lead)
	if lead == "" {
		return "", &StepError{Step: "lead", Selector: sel, Err: ErrNoInformation}
	}
	return lead, nil
}

func (e *Extractor) title(doc *goquery.Selection) (string, error) {
	sel := e.selectors.Title
	title := Tidy(strings.Join(ownTexts(doc.Find(sel).First()), " "))
	if title == "" {
		return "", &StepError{Step: "title", Selector: sel, Err: ErrNoInformation}
	}
	return title, nil
}

func dateForm(f localedate.Form) entity.DateForm {
	switch f {
	case localedate.AbsoluteNoYear:
		return entity.DateAbsoluteNoYear
	case localedate.Today:
		return entity.DateToday
	case localedate.Yesterday:
		return entity.DateYesterday
	}
	return entity.DateAbsolute
}
