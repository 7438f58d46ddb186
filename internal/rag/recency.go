package rag

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateMatcher recognises one way of writing a date in a file name.
type dateMatcher struct {
	name  string
	match func(name string) (time.Time, bool)
}

// filenameMatchers are tried in order; the first hit wins.
var filenameMatchers = []dateMatcher{
	{name: "year-month", match: matchYearMonth},
	{name: "quarter", match: matchQuarter},
	{name: "year", match: matchYear},
	{name: "numeric-suffix", match: matchNumericSuffix},
}

var (
	isoYearMonth = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})[-_./ ](0[1-9]|1[0-2])(?:\D|$)`)
	namedMonth   = regexp.MustCompile(`(?i)(?:^|[^a-z])(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?[\s_,-]*((?:19|20)\d{2})(?:\D|$)`)
	quarterYear  = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])q([1-4])[\s_-]*'?((?:19|20)?\d{2})(?:\D|$)`)
	yearQuarter  = regexp.MustCompile(`(?i)(?:^|\D)((?:19|20)\d{2})[\s_-]*q([1-4])(?:[^0-9]|$)`)
	bareYear     = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	digitSuffix  = regexp.MustCompile(`(?:^|\D)(\d{8}|\d{6})$`)

	fileExtension = regexp.MustCompile(`\.[A-Za-z0-9]{2,5}$`)
	versionSuffix = regexp.MustCompile(`(?i)(?:\s*\(\d+\)|[\s_-]+(?:v\d+(?:\.\d+)*|copy|final))$`)
	dateSuffix    = regexp.MustCompile(`[\s_-]+\d{6,8}$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseFilenameDate guesses a document date from its file name. Quarters
// resolve to their last day, months and years to their first.
func ParseFilenameDate(name string) (time.Time, bool) {
	stem := stripExtension(strings.TrimSpace(name))
	for _, m := range filenameMatchers {
		if t, ok := m.match(stem); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func matchYearMonth(s string) (time.Time, bool) {
	if m := isoYearMonth.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return date(year, time.Month(month), 1), true
	}
	if m := namedMonth.FindStringSubmatch(s); m != nil {
		month := monthNames[strings.ToLower(m[1])[:3]]
		year, _ := strconv.Atoi(m[2])
		return date(year, month, 1), true
	}
	return time.Time{}, false
}

func matchQuarter(s string) (time.Time, bool) {
	var year, quarter int
	if m := quarterYear.FindStringSubmatch(s); m != nil {
		quarter, _ = strconv.Atoi(m[1])
		year, _ = strconv.Atoi(m[2])
		if year < 100 {
			year += 2000
		}
	} else if m := yearQuarter.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
		quarter, _ = strconv.Atoi(m[2])
	} else {
		return time.Time{}, false
	}
	// Day 0 of the month after the quarter is its last day.
	return date(year, time.Month(quarter*3+1), 0), true
}

func matchYear(s string) (time.Time, bool) {
	m := bareYear.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	return date(year, time.January, 1), true
}

// matchNumericSuffix reads YYYYMMDD or YYYYMM at the end of the name.
func matchNumericSuffix(s string) (time.Time, bool) {
	m := digitSuffix.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	digits := m[1]
	year, _ := strconv.Atoi(digits[:4])
	month, _ := strconv.Atoi(digits[4:6])
	day := 1
	if len(digits) == 8 {
		day, _ = strconv.Atoi(digits[6:8])
	}
	if year < 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := date(year, time.Month(month), day)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func stripExtension(name string) string {
	return fileExtension.ReplaceAllString(name, "")
}

// DisplayName strips the extension and trailing version or date suffixes
// ("Deck_v3.pdf", "Tracker (1).xlsx", "Wave_20240315") from a file name.
func DisplayName(name string) string {
	out := stripExtension(strings.TrimSpace(name))
	for {
		trimmed := versionSuffix.ReplaceAllString(out, "")
		trimmed = dateSuffix.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimRight(trimmed, " _-")
		if trimmed == out || trimmed == "" {
			break
		}
		out = trimmed
	}
	if out == "" {
		return strings.TrimSpace(name)
	}
	return out
}
