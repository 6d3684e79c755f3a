package risk

import (
	"time"

	"cropcare/internal/types"
)

const dayLayout = "2006-01-02"

// Activity counts records per UTC calendar day over a trailing window that
// ends on now's day. The result always has `days` entries, oldest first,
// with zero-count days filled in. Records outside the window are ignored.
func Activity(records []types.HistoryRecord, now time.Time, days int) ([]types.DayBucket, error) {
	if err := types.ValidateActivityWindow(days); err != nil {
		return nil, err
	}

	today := truncateDay(now)
	start := today.AddDate(0, 0, -(days - 1))

	buckets := make([]types.DayBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		buckets[i] = types.DayBucket{Day: day}
		index[day] = i
	}

	for _, rec := range records {
		if rec.CapturedAt.IsZero() {
			continue
		}
		if i, ok := index[truncateDay(rec.CapturedAt).Format(dayLayout)]; ok {
			buckets[i].Count++
		}
	}
	return buckets, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
