// Package localedate parses the publish date labels rendered by lsm.lv.
//
// The site renders a date differently depending on its age:
//
//	"5. jūnijs, 2013, 13:00"  absolute
//	"1. februāris, 08:30"     absolute, current year
//	"Šodien, 8:30"            today
//	"Vakar, 19:54"            yesterday
//
// Relative forms are resolved against a reference time, normally the moment the
// page download started.
package localedate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrParse is wrapped by every *ParseError.
var ErrParse = errors.New("unrecognized date")

const (
	todayKeyword     = "šodien"
	yesterdayKeyword = "vakar"
)

// Form identifies which surface form a date label used.
type Form int

const (
	Absolute Form = iota
	AbsoluteNoYear
	Today
	Yesterday
)

func (f Form) String() string {
	switch f {
	case Absolute:
		return "absolute"
	case AbsoluteNoYear:
		return "absolute_no_year"
	case Today:
		return "today"
	case Yesterday:
		return "yesterday"
	}
	return "unknown"
}

// Relative reports whether the form depends on the reference time's calendar date.
func (f Form) Relative() bool {
	return f == Today || f == Yesterday
}

var months = map[string]time.Month{
	"janvāris":   time.January,
	"februāris":  time.February,
	"marts":      time.March,
	"aprīlis":    time.April,
	"maijs":      time.May,
	"jūnijs":     time.June,
	"jūlijs":     time.July,
	"augusts":    time.August,
	"septembris": time.September,
	"oktobris":   time.October,
	"novembris":  time.November,
	"decembris":  time.December,
}

// ParseError describes why a date label could not be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrParse, e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Parsed is a resolved date label.
type Parsed struct {
	Time time.Time
	Form Form
}

// Parser resolves date labels into a fixed location. It is safe for concurrent use.
type Parser struct {
	loc *time.Location
}

// NewParser returns a Parser producing times in loc.
func NewParser(loc *time.Location) *Parser {
	return &Parser{loc: loc}
}

// Riga returns a Parser for the Europe/Riga timezone.
func Riga() (*Parser, error) {
	loc, err := time.LoadLocation("Europe/Riga")
	if err != nil {
		return nil, err
	}
	return NewParser(loc), nil
}

// Parse resolves raw relative to now.
func (p *Parser) Parse(raw string, now time.Time) (Parsed, error) {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	ref := now.In(p.loc)

	switch len(parts) {
	case 3:
		day, month, err := p.dayMonth(raw, parts[0])
		if err != nil {
			return Parsed{}, err
		}
		year, err := number(raw, "year", parts[1], 1, 9999)
		if err != nil {
			return Parsed{}, err
		}
		return p.build(raw, Absolute, year, month, day, parts[2])

	case 2:
		switch fold(parts[0]) {
		case todayKeyword:
			return p.build(raw, Today, ref.Year(), ref.Month(), ref.Day(), parts[1])
		case yesterdayKeyword:
			y := time.Date(ref.Year(), ref.Month(), ref.Day()-1, 12, 0, 0, 0, p.loc)
			return p.build(raw, Yesterday, y.Year(), y.Month(), y.Day(), parts[1])
		}
		day, month, err := p.dayMonth(raw, parts[0])
		if err != nil {
			return Parsed{}, err
		}
		return p.build(raw, AbsoluteNoYear, ref.Year(), month, day, parts[1])
	}

	return Parsed{}, &ParseError{Input: raw, Reason: fmt.Sprintf("expected 2 or 3 comma separated parts, got %d", len(parts))}
}

// dayMonth reads "<day>. <month-name>".
func (p *Parser) dayMonth(raw, s string) (int, time.Month, error) {
	dayStr, monthStr, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0, &ParseError{Input: raw, Reason: fmt.Sprintf("missing day separator in %q", s)}
	}
	day, err := number(raw, "day", strings.TrimSpace(dayStr), 1, 31)
	if err != nil {
		return 0, 0, err
	}
	month, ok := months[fold(strings.TrimSpace(monthStr))]
	if !ok {
		return 0, 0, &ParseError{Input: raw, Reason: fmt.Sprintf("unknown month %q", strings.TrimSpace(monthStr))}
	}
	return day, month, nil
}

// build combines the date with the "HH:MM" part and validates the calendar date.
func (p *Parser) build(raw string, form Form, year int, month time.Month, day int, clock string) (Parsed, error) {
	clock = strings.ReplaceAll(clock, " ", "")
	hourStr, minStr, ok := strings.Cut(clock, ":")
	if !ok {
		return Parsed{}, &ParseError{Input: raw, Reason: fmt.Sprintf("malformed time %q", clock)}
	}
	hour, err := number(raw, "hour", hourStr, 0, 23)
	if err != nil {
		return Parsed{}, err
	}
	minute, err := number(raw, "minute", minStr, 0, 59)
	if err != nil {
		return Parsed{}, err
	}

	t := time.Date(year, month, day, hour, minute, 0, 0, p.loc)
	if t.Day() != day || t.Month() != month {
		return Parsed{}, &ParseError{Input: raw, Reason: fmt.Sprintf("no such date %d. %s %d", day, month, year)}
	}
	return Parsed{Time: t, Form: form}, nil
}

func number(raw, field, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Input: raw, Reason: fmt.Sprintf("malformed %s %q", field, s)}
	}
	if n < lo || n > hi {
		return 0, &ParseError{Input: raw, Reason: fmt.Sprintf("%s %d out of range", field, n)}
	}
	return n, nil
}

// fold lower-cases s with Latvian rules. Casers are stateful, so one is built per call.
func fold(s string) string {
	return cases.Lower(language.Latvian).String(s)
}
