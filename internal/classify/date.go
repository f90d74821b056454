package classify

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/civil"
	"github.com/araddon/dateparse"
)

var (
	bareNumber  = regexp.MustCompile(`^[-+]?[\d,]*\.?\d+$`)
	threeGroups = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)
	digitGroup  = regexp.MustCompile(`\d+`)
	yearGroup   = regexp.MustCompile(`^\d{4}$`)
	letter      = regexp.MustCompile(`\pL`)
	leadingDMY  = regexp.MustCompile(`^(\d{1,2})([-/.])(\d{1,2})([-/.])`)
	leadingDash = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2,4})\b`)
)

// isDateCandidate rejects text that a lenient parser would turn into a partial date.
// A candidate carries a day, a month and a year: either three numeric groups,
// or a month name with a 4-digit year and a day number.
func isDateCandidate(s string) bool {
	if bareNumber.MatchString(s) {
		return false
	}
	if threeGroups.MatchString(s) {
		return true
	}
	if !letter.MatchString(s) {
		return false
	}

	groups := digitGroup.FindAllString(s, -1)
	if len(groups) < 2 {
		return false
	}
	for _, g := range groups {
		if yearGroup.MatchString(g) {
			return true
		}
	}
	return false
}

// parseDate parses s as a calendar date. Ambiguous numeric layouts are read
// month first, and day first when the month-first reading is impossible.
func parseDate(s string) (civil.Date, bool) {
	if !isDateCandidate(s) {
		return civil.Date{}, false
	}
	// dateparse rejects dd-mm-yyyy and mm-dd-yyyy; the slash form gets the same ambiguity handling.
	s = leadingDash.ReplaceAllString(s, "$1/$2/$3")

	t, err := tryParse(parseStrict, s)
	if errors.Is(err, dateparse.ErrAmbiguousMMDD) {
		t, err = tryParse(parseUTC, s)
		if err != nil {
			t, err = tryParse(parseUTC, leadingDMY.ReplaceAllString(s, "$3$2$1$4"))
		}
	}
	if err != nil {
		return civil.Date{}, false
	}

	if t.Year() < 1000 || t.Year() > 9999 {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

func parseStrict(s string) (time.Time, error) {
	return dateparse.ParseStrict(s)
}

func parseUTC(s string) (time.Time, error) {
	return dateparse.ParseIn(s, time.UTC)
}

// tryParse turns a parser panic on odd input into an error so classification stays total.
func tryParse(parse func(string) (time.Time, error), s string) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse date %q: %v", s, r)
		}
	}()
	return parse(s)
}
