package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"mercator-hq/callisto/pkg/sds"
)

// Filter selects archive files for a pass.
type Filter func(sds.File) bool

// All accepts every file.
func All() Filter {
	return func(sds.File) bool { return true }
}

// OnDate accepts files whose data window starts on the UTC day of t.
func OnDate(t time.Time) Filter {
	t = t.UTC()
	year, day := t.Year(), t.YearDay()
	return func(f sds.File) bool {
		return f.Year == year && f.Day == day
	}
}

// Wildcard accepts files whose name matches pattern. The pattern must name
// all seven SDS fields, for example "NL.*.*.BH?.D.2024.*".
func Wildcard(pattern string) (Filter, error) {
	if n := len(strings.Split(pattern, ".")); n != 7 {
		return nil, fmt.Errorf("invalid file expression %q: expected 7 fields, got %d", pattern, n)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid file expression %q", pattern)
	}
	return func(f sds.File) bool {
		ok, _ := doublestar.Match(pattern, f.Filename())
		return ok
	}, nil
}

// DateRange accepts files for the days strictly between from and
// from+days. A negative days value walks backwards. The day of from itself
// is never included, so DateRange(now, -3) selects the two days before now.
func DateRange(from time.Time, days int) Filter {
	step := 1
	if days < 0 {
		step = -1
		days = -days
	}

	wanted := make(map[[2]int]struct{}, days)
	for i := 1; i < days; i++ {
		t := from.UTC().AddDate(0, 0, i*step)
		wanted[[2]int{t.Year(), t.YearDay()}] = struct{}{}
	}
	return func(f sds.File) bool {
		_, ok := wanted[[2]int{f.Year, f.Day}]
		return ok
	}
}

// PastDays accepts files from the days before now, excluding today.
func PastDays(now time.Time, days int) Filter {
	return DateRange(now, -days)
}

// And accepts files accepted by every filter.
func And(filters ...Filter) Filter {
	return func(f sds.File) bool {
		for _, filter := range filters {
			if filter != nil && !filter(f) {
				return false
			}
		}
		return true
	}
}
