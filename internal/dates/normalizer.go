// Package dates normalizes the free-text Spanish date strings found on
// listing sites into calendar dates. Parsing is deterministic and pure:
// the reference time is an explicit argument, never read from the clock.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var fullMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

var abbrevMonths = map[string]time.Month{
	"ene": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August,
	"sep": time.September,
	"set": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December,
}

// month subpattern: full or abbreviated Spanish month name, either case.
const monthPat = `([a-zA-ZáéíóúÁÉÍÓÚñÑ]{3,})`

// optional leading weekday word ("Sábado, 14 de Marzo ...").
const weekdayPat = `(?:[a-zA-ZáéíóúÁÉÍÓÚñÑ]+[,.]?\s+)?`

var (
	reFullDate = regexp.MustCompile(`(?i)^` + weekdayPat + `(\d{1,2})\s*(?:de\s+)?` + monthPat + `\.?\s*(?:de[l]?\s+)?(\d{4})$`)

	reRangeFull  = regexp.MustCompile(`(?i)^(?:del?\s+)?(\d{1,2})\s*(?:de\s+)?` + monthPat + `\s*(?:al|hasta|-|–)\s*\d{1,2}\s*(?:de\s+)?` + monthPat + `$`)
	reRangeShort = regexp.MustCompile(`(?i)^(?:del?\s+)?(\d{1,2})\s*(?:al|hasta|-|–)\s*\d{1,2}\s*(?:de\s+)?` + monthPat + `$`)

	reDayList = regexp.MustCompile(`(?i)^(\d{1,2})(?:\s*,\s*\d{1,2})*(?:\s*y\s*\d{1,2})?\s+(?:de\s+)?` + monthPat + `$`)

	reDayMonth = regexp.MustCompile(`(?i)^` + weekdayPat + `(\d{1,2})\s*(?:de\s+)?` + monthPat + `\.?$`)

	reCompact = regexp.MustCompile(`(?i)^(\d{1,2})\s*([a-zA-Z]{3})\.?$`)

	reMonthRange = regexp.MustCompile(`(?i)^` + monthPat + `\s*[-–]\s*` + monthPat + `$`)
)

// matcher attempts one date idiom. now is only consulted for year inference.
type matcher func(s string, now time.Time) (time.Time, bool)

// matchers in precedence order: more specific idioms first, so that the
// looser day-month rules cannot shadow ranges or explicit years.
var matchers = []matcher{
	matchFullDate,
	matchRange,
	matchDayList,
	matchDayMonth,
	matchCompact,
	matchMonthRange,
}

// Normalize parses a raw scraped date string against the reference time.
// It returns false for text no rule recognizes; callers keep the raw
// string for display rather than discarding it.
func Normalize(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, m := range matchers {
		if d, ok := m(s, now); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// matchFullDate: explicit day, month name and 4-digit year, e.g.
// "14 de Marzo de 2026" or "Sábado, 14 Marzo 2026". An explicit year
// always wins over inference.
func matchFullDate(s string, _ time.Time) (time.Time, bool) {
	m := reFullDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := monthFromName(m[2])
	if !ok {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[3])
	return makeDate(year, month, day)
}

// matchRange: "del 24 de Febrero al 14 de Marzo" or "del 24 al 26 de
// Febrero". The first endpoint wins; the short form shares the trailing
// month across both endpoints.
func matchRange(s string, now time.Time) (time.Time, bool) {
	if m := reRangeFull.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		if month, ok := monthFromName(m[2]); ok {
			if _, ok := monthFromName(m[3]); ok {
				return inferYear(day, month, now)
			}
		}
	}
	if m := reRangeShort.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		if month, ok := monthFromName(m[2]); ok {
			return inferYear(day, month, now)
		}
	}
	return time.Time{}, false
}

// matchDayList: "04, 05 y 06 de Febrero" — a list of days sharing one
// trailing month. The first day wins.
func matchDayList(s string, now time.Time) (time.Time, bool) {
	m := reDayList.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	// A single day is the day-month rule's business, and letting it
	// through here would bypass that rule's weekday handling.
	if !strings.ContainsAny(s, ",y") {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := monthFromName(m[2])
	if !ok {
		return time.Time{}, false
	}
	return inferYear(day, month, now)
}

// matchDayMonth: "24 de Febrero", "Viernes 24 Febrero".
func matchDayMonth(s string, now time.Time) (time.Time, bool) {
	m := reDayMonth.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := monthFromName(m[2])
	if !ok {
		return time.Time{}, false
	}
	return inferYear(day, month, now)
}

// matchCompact: "27 FEB" — day plus bare 3-letter abbreviation.
func matchCompact(s string, now time.Time) (time.Time, bool) {
	m := reCompact.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := abbrevMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	return inferYear(day, month, now)
}

// matchMonthRange: "ENE - MAR" — anchor to day 1 of the first month.
func matchMonthRange(s string, now time.Time) (time.Time, bool) {
	m := reMonthRange.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	first, ok := monthFromName(m[1])
	if !ok {
		return time.Time{}, false
	}
	if _, ok := monthFromName(m[2]); !ok {
		return time.Time{}, false
	}
	return inferYear(1, first, now)
}

// monthFromName resolves a full Spanish month name; when that misses, the
// first three letters are tried against the abbreviation table.
func monthFromName(name string) (time.Month, bool) {
	n := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if m, ok := fullMonths[n]; ok {
		return m, true
	}
	if len(n) >= 3 {
		if m, ok := abbrevMonths[n[:3]]; ok {
			return m, true
		}
	}
	return 0, false
}

// inferYear assumes the current year and rolls forward to the next one
// when the resulting date is strictly in the past, so a months-old
// listing never resolves to last year.
func inferYear(day int, month time.Month, now time.Time) (time.Time, bool) {
	year := now.Year()
	if month < now.Month() || (month == now.Month() && day < now.Day()) {
		year++
	}
	return makeDate(year, month, day)
}

// makeDate builds a date and rejects day overflow (time.Date would
// silently normalize "31 de Febrero" into March).
func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
