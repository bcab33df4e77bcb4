package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	moreThanDaysRE = regexp.MustCompile(`hace\s+mas\s+de\s+(\d+)\s+dias?|more\s+than\s+(\d+)\s+days?\s+ago`)
	relativeRE     = regexp.MustCompile(`hace\s+(\d+)\s+(minutos?|horas?|dias?|semanas?)`)
	relativeEnRE   = regexp.MustCompile(`(\d+)\s+(minutes?|hours?|days?|weeks?)\s+ago`)
	yesterdayRE    = regexp.MustCompile(`\b(ayer|yesterday)\b`)
	todayRE        = regexp.MustCompile(`\b(hoy|today|hace\s+instantes|just\s+now)\b`)
	absoluteRE     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoRE          = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})`)
)

// ParseDate interprets a human publication phrase relative to now and returns
// the calendar date it refers to. Unrecognized phrases, including a bare
// "actualizada" with no recency, report false rather than guessing.
func ParseDate(text string, now time.Time) (time.Time, bool) {
	s := CleanText(Fold(text))
	if s == "" {
		return time.Time{}, false
	}

	if m := moreThanDaysRE.FindStringSubmatch(s); m != nil {
		n := firstNumber(m[1:])
		return dateOf(now.AddDate(0, 0, -n)), true
	}
	if m := relativeRE.FindStringSubmatch(s); m != nil {
		return applyOffset(now, m[1], m[2])
	}
	if m := relativeEnRE.FindStringSubmatch(s); m != nil {
		return applyOffset(now, m[1], m[2])
	}
	if yesterdayRE.MatchString(s) {
		return dateOf(now.AddDate(0, 0, -1)), true
	}
	if todayRE.MatchString(s) {
		return dateOf(now), true
	}
	if m := absoluteRE.FindStringSubmatch(s); m != nil {
		return parseAbsolute(m[1], m[2], m[3], now.Location())
	}
	// Structured data carries datePosted as an ISO timestamp.
	if m := isoRE.FindStringSubmatch(s); m != nil {
		return parseAbsolute(m[3], m[2], m[1], now.Location())
	}
	return time.Time{}, false
}

func applyOffset(now time.Time, rawN, unit string) (time.Time, bool) {
	n, err := strconv.Atoi(rawN)
	if err != nil {
		return time.Time{}, false
	}
	switch {
	case strings.HasPrefix(unit, "minut"):
		return dateOf(now.Add(-time.Duration(n) * time.Minute)), true
	case strings.HasPrefix(unit, "hor"), strings.HasPrefix(unit, "hour"):
		return dateOf(now.Add(-time.Duration(n) * time.Hour)), true
	case strings.HasPrefix(unit, "dia"), strings.HasPrefix(unit, "day"):
		return dateOf(now.AddDate(0, 0, -n)), true
	case strings.HasPrefix(unit, "semana"), strings.HasPrefix(unit, "week"):
		return dateOf(now.AddDate(0, 0, -7*n)), true
	default:
		return time.Time{}, false
	}
}

func parseAbsolute(rawD, rawM, rawY string, loc *time.Location) (time.Time, bool) {
	d, errD := strconv.Atoi(rawD)
	m, errM := strconv.Atoi(rawM)
	y, errY := strconv.Atoi(rawY)
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	// time.Date normalizes 31/02 into March; reject that.
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func firstNumber(groups []string) int {
	for _, g := range groups {
		if g == "" {
			continue
		}
		if n, err := strconv.Atoi(g); err == nil {
			return n
		}
	}
	return 0
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
