// Package daygroup buckets timestamps into calendar days for display.
package daygroup

import "time"

const isoDate = "2006-01-02"

// Bucket is the grouping key of a day together with its display label.
type Bucket struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Classify places t in the calendar day it falls on in now's location. The
// key is always the ISO date; the label is relative for the current week.
func Classify(t, now time.Time) Bucket {
	t = t.In(now.Location())
	key := t.Format(isoDate)

	switch diff := daysBetween(t, now); {
	case diff == 0:
		return Bucket{Key: key, Label: "Today"}
	case diff == 1:
		return Bucket{Key: key, Label: "Yesterday"}
	case diff > 1 && diff < 7:
		return Bucket{Key: key, Label: t.Weekday().String()}
	default:
		return Bucket{Key: key, Label: key}
	}
}

// daysBetween counts calendar days from a to b, ignoring the wall clock so
// DST transitions do not shift the result.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
