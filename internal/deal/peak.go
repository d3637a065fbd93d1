package deal

import (
	"fmt"
	"time"
)

// BucketFor maps a claim instant to its histogram bucket: day of week (0 = Sunday)
// and the hour truncated to "HH:00", both read in loc.
func BucketFor(ts time.Time, loc *time.Location) (int, string) {
	if loc == nil {
		loc = time.Local
	}
	local := ts.In(loc)
	return int(local.Weekday()), fmt.Sprintf("%02d:00", local.Hour())
}

// Increment returns the list with the (day, timeOfDay) bucket bumped by one,
// appending the bucket when it does not exist yet.
func (p PeakTimes) Increment(day int, timeOfDay string) PeakTimes {
	out := make(PeakTimes, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].DayOfWeek == day && out[i].TimeOfDay == timeOfDay {
			out[i].ClaimCount++
			return out
		}
	}
	return append(out, PeakTime{DayOfWeek: day, TimeOfDay: timeOfDay, ClaimCount: 1})
}

// BuildPeakTimes computes the histogram from scratch in first-seen bucket order.
func BuildPeakTimes(timestamps []time.Time, loc *time.Location) PeakTimes {
	peaks := PeakTimes{}
	for _, ts := range timestamps {
		day, hour := BucketFor(ts, loc)
		peaks = peaks.Increment(day, hour)
	}
	return peaks
}
