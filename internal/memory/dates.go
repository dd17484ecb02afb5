package memory

import "time"

const dateLayout = "2006-01-02"

// resolveDateRange expands a dateRange shorthand ("yesterday",
// "last_week"/"last_7_days", "last_month") into explicit from/to bounds in
// the given timezone. An unrecognized or empty shorthand returns ok=false.
func resolveDateRange(shorthand string, tz *time.Location, now time.Time) (from, to string, ok bool) {
	today := now.In(tz)
	switch shorthand {
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d.Format(dateLayout), d.Format(dateLayout), true
	case "last_week", "last_7_days":
		return today.AddDate(0, 0, -7).Format(dateLayout), today.Format(dateLayout), true
	case "last_month":
		return today.AddDate(0, -1, 0).Format(dateLayout), today.Format(dateLayout), true
	default:
		return "", "", false
	}
}

// dateInRange reports whether sourceDate falls in the filter's effective
// [from, to] window. With no filter bounds every chunk passes; with bounds
// set, a chunk with an empty sourceDate does not.
func dateInRange(sourceDate string, filters SearchFilters) bool {
	from, to := filters.DateFrom, filters.DateTo
	if filters.DateRange != "" {
		if rf, rt, ok := resolveDateRange(filters.DateRange, timezoneOrUTC(filters.Timezone), time.Now()); ok {
			from, to = rf, rt
		}
	}
	if from == "" && to == "" {
		return true
	}
	if sourceDate == "" {
		return false
	}
	if from != "" && sourceDate < from {
		return false
	}
	if to != "" && sourceDate > to {
		return false
	}
	return true
}

func timezoneOrUTC(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	return time.UTC
}
