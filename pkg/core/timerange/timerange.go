// Package timerange parses the free-text date and time expressions used
// across the duty sheets and chat queries: "10.3", "10.3.24 07:00-19:00",
// "10.3 07:00 - 12.3 08:00". Dates are day-first; two-digit years mean
// 2000+YY; a clock range whose end is before its start crosses midnight.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const datePattern = `(?P<day>\d{1,2})[./](?P<month>\d{1,2})(?:[./](?P<year>\d{2,4}))?`

var (
	dateRe = regexp.MustCompile(datePattern)
	// occurrenceRe matches one "date [HH:MM]" fragment inside a free-text range.
	occurrenceRe = regexp.MustCompile(datePattern + `(?:\s+(?P<hours>\d{1,2}):(?P<minutes>\d{2}))?`)
	clockRe      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseError reports an unparsable date or time fragment. Callers
// recover by re-prompting the user, never by silently defaulting.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse date/time from %q", e.Input)
}

// Parser turns date and clock tokens into instants in a fixed location.
// The clock func supplies "now" for the missing-year rule and is
// injectable for tests.
type Parser struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Parser. A nil location means UTC; a nil clock means time.Now.
func New(loc *time.Location, now func() time.Time) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Parser{loc: loc, now: now}
}

// ParseDate extracts the first D.M[.Y] occurrence in token and returns
// that date at midnight.
func (p *Parser) ParseDate(token string) (time.Time, error) {
	m := dateRe.FindStringSubmatch(token)
	if m == nil {
		return time.Time{}, &ParseError{Input: token}
	}
	return p.dateFromMatch(token, m, dateRe)
}

// Window combines a date token with an optional "HH:MM-HH:MM" clock
// range, as found in a task sheet row. An empty clock token means the
// whole day (00:00 to 23:59). An end clock before the start clock
// pushes the end to the following day.
func (p *Parser) Window(dateToken, clockToken string) (start, end time.Time, err error) {
	day, err := p.ParseDate(dateToken)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	startH, startM, endH, endM := 0, 0, 23, 59
	if strings.TrimSpace(clockToken) != "" {
		startH, startM, endH, endM, err = parseClockRange(clockToken)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	start = day.Add(time.Duration(startH)*time.Hour + time.Duration(startM)*time.Minute)
	end = day.Add(time.Duration(endH)*time.Hour + time.Duration(endM)*time.Minute)
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// ParseRange parses a free-text range such as "10.3 07:00 - 12.3 08:00"
// by locating the first and (optionally) second date/time occurrence.
// With a single occurrence the end defaults to one day after the start.
func (p *Parser) ParseRange(text string) (start, end time.Time, err error) {
	matches := occurrenceRe.FindAllStringSubmatch(text, 2)
	if len(matches) == 0 {
		return time.Time{}, time.Time{}, &ParseError{Input: text}
	}

	start, err = p.instantFromMatch(text, matches[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if len(matches) > 1 {
		end, err = p.instantFromMatch(text, matches[1])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
	} else {
		end = start.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// Contains reports whether t falls within [start, end).
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// Overlaps reports whether [aStart, aEnd] and [bStart, bEnd] intersect.
// Boundary touch counts as overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

func (p *Parser) dateFromMatch(input string, m []string, re *regexp.Regexp) (time.Time, error) {
	day := atoiGroup(m, re, "day")
	month := atoiGroup(m, re, "month")
	year, err := p.yearFor(group(m, re, "year"))
	if err != nil {
		return time.Time{}, &ParseError{Input: input}
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, &ParseError{Input: input}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc), nil
}

func (p *Parser) instantFromMatch(input string, m []string) (time.Time, error) {
	day, err := p.dateFromMatch(input, m, occurrenceRe)
	if err != nil {
		return time.Time{}, err
	}
	hours := group(m, occurrenceRe, "hours")
	minutes := group(m, occurrenceRe, "minutes")
	if hours == "" {
		return day, nil
	}
	h, _ := strconv.Atoi(hours)
	min, _ := strconv.Atoi(minutes)
	if h > 23 || min > 59 {
		return time.Time{}, &ParseError{Input: input}
	}
	return day.Add(time.Duration(h)*time.Hour + time.Duration(min)*time.Minute), nil
}

// yearFor applies the year rules: missing means the current year,
// two digits mean 2000+YY, four digits are taken as-is.
func (p *Parser) yearFor(token string) (int, error) {
	if token == "" {
		return p.now().Year(), nil
	}
	year, err := strconv.Atoi(token)
	if err != nil {
		return 0, err
	}
	if len(token) == 4 {
		return year, nil
	}
	return 2000 + year, nil
}

func parseClockRange(token string) (startH, startM, endH, endM int, err error) {
	parts := strings.SplitN(strings.TrimSpace(token), "-", 2)
	if len(parts) != 2 {
		return 0, 0, 0, 0, &ParseError{Input: token}
	}
	startH, startM, err = parseClock(parts[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	endH, endM, err = parseClock(parts[1])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return startH, startM, endH, endM, nil
}

func parseClock(token string) (int, int, error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return 0, 0, &ParseError{Input: token}
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return 0, 0, &ParseError{Input: token}
	}
	return h, min, nil
}

func group(m []string, re *regexp.Regexp, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(m) {
			return m[i]
		}
	}
	return ""
}

func atoiGroup(m []string, re *regexp.Regexp, name string) int {
	v, _ := strconv.Atoi(group(m, re, name))
	return v
}
