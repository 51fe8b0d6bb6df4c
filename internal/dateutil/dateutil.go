package dateutil

import (
	"time"

	"miniquest-worker/internal/constants"
)

const dayKeyLayout = "2006-01-02"

// DayKey maps an instant to its local calendar-day key ("YYYY-MM-DD") under
// the app's fixed timezone offset. Day buckets are aligned to the offset, so
// for JST the day rolls over at 15:00 UTC.
func DayKey(t time.Time) string {
	return t.UTC().Add(constants.DayKeyOffset).Format(dayKeyLayout)
}

// YesterdayKey is the day key of the calendar day preceding the given
// instant's day.
func YesterdayKey(t time.Time) string {
	return DayKey(t.Add(-24 * time.Hour))
}
