// Package timestamp resolves the yearless timestamps of classic syslog
// records to absolute times.
package timestamp

import (
	"strconv"
	"strings"
	"time"
)

// futureSlack is how far past the reference time a resolved timestamp may
// land before it is assumed to belong to the previous year.
const futureSlack = 24 * time.Hour

var (
	monthLayouts = []string{"Jan", "January"}
	clockLayouts = []string{"15:04:05", "15:04:05.999999999", "15:04"}
)

// ResolveSyslog interprets ts ("Jul 1 09:00:55") in ref's location. The year
// is taken from ref, or the year before when that would put the timestamp
// more than a day after ref or when the date does not exist in ref's year
// (Feb 29). ok is false when ts is not a recognizable month, day and clock
// triple.
func ResolveSyslog(ts string, ref time.Time) (t time.Time, ok bool) {
	fields := strings.Fields(ts)
	if len(fields) != 3 {
		return time.Time{}, false
	}
	t, ok = parseInYear(fields, ref.Year(), ref.Location())
	if !ok {
		return parseInYear(fields, ref.Year()-1, ref.Location())
	}
	if t.After(ref.Add(futureSlack)) {
		return parseInYear(fields, ref.Year()-1, ref.Location())
	}
	return t, true
}

func parseInYear(fields []string, year int, loc *time.Location) (time.Time, bool) {
	value := strconv.Itoa(year) + " " + strings.Join(fields, " ")
	for _, month := range monthLayouts {
		for _, clock := range clockLayouts {
			t, err := time.ParseInLocation("2006 "+month+" 2 "+clock, value, loc)
			if err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
