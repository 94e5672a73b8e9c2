// Package sitemap parses sitemap documents and decides which of their entries
// are new relative to the archive.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pazars/grabeklis/internal/entity"
)

// ErrUnknownDocument is returned for XML whose root is neither urlset nor sitemapindex.
var ErrUnknownDocument = errors.New("not a sitemap document")

var lastModLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

type xmlURLSet struct {
	URLs []xmlLoc `xml:"url"`
}

type xmlSitemapIndex struct {
	Sitemaps []xmlLoc `xml:"sitemap"`
}

type xmlLoc struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// ParseDocument parses a <urlset> or <sitemapindex> body. Entries of an index
// are marked with Index=true. Unparseable lastmod values are dropped, leaving
// LastModified nil.
func ParseDocument(body []byte) ([]entity.SitemapEntry, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, err
	}

	switch root {
	case "urlset":
		var set xmlURLSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, fmt.Errorf("parse urlset: %w", err)
		}
		return toEntries(set.URLs, false), nil
	case "sitemapindex":
		var index xmlSitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			return nil, fmt.Errorf("parse sitemap index: %w", err)
		}
		return toEntries(index.Sitemaps, true), nil
	default:
		return nil, fmt.Errorf("%w: root element <%s>", ErrUnknownDocument, root)
	}
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: empty document", ErrUnknownDocument)
		}
		if err != nil {
			return "", fmt.Errorf("read sitemap root: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func toEntries(locs []xmlLoc, index bool) []entity.SitemapEntry {
	entries := make([]entity.SitemapEntry, 0, len(locs))
	for _, l := range locs {
		loc := strings.TrimSpace(l.Loc)
		if loc == "" {
			continue
		}
		e := entity.SitemapEntry{URL: loc, Index: index}
		if t, err := ParseLastMod(l.LastMod); err == nil {
			e.LastModified = &t
		}
		entries = append(entries, e)
	}
	return entries
}

// ParseLastMod parses a W3C datetime lastmod value. Values without an offset
// are read in the site's time zone.
func ParseLastMod(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, errors.New("empty lastmod")
	}
	for _, layout := range lastModLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, entity.SiteLocation); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse lastmod %q: unsupported format", trimmed)
}
