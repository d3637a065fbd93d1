package deal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketFor(t *testing.T) {
	// 2024-03-03 is a Sunday
	ts := time.Date(2024, 3, 3, 15, 59, 59, 0, time.UTC)

	day, hour := BucketFor(ts, time.UTC)
	require.Equal(t, 0, day)
	require.Equal(t, "15:00", hour)

	// crosses midnight into Monday
	day, hour = BucketFor(ts, time.FixedZone("UTC+9", 9*60*60))
	require.Equal(t, 1, day)
	require.Equal(t, "00:00", hour)

	day, hour = BucketFor(time.Date(2024, 3, 9, 0, 5, 0, 0, time.UTC), time.UTC)
	require.Equal(t, 6, day)
	require.Equal(t, "00:00", hour)
}

func TestIncrementFindsOrCreates(t *testing.T) {
	var peaks PeakTimes

	peaks = peaks.Increment(2, "09:00")
	peaks = peaks.Increment(2, "10:00")
	peaks = peaks.Increment(2, "09:00")
	peaks = peaks.Increment(3, "09:00")

	require.Equal(t, PeakTimes{
		{DayOfWeek: 2, TimeOfDay: "09:00", ClaimCount: 2},
		{DayOfWeek: 2, TimeOfDay: "10:00", ClaimCount: 1},
		{DayOfWeek: 3, TimeOfDay: "09:00", ClaimCount: 1},
	}, peaks)
}

func TestIncrementDoesNotMutateInput(t *testing.T) {
	in := PeakTimes{{DayOfWeek: 1, TimeOfDay: "08:00", ClaimCount: 4}}
	out := in.Increment(1, "08:00")

	require.Equal(t, 4, in[0].ClaimCount)
	require.Equal(t, 5, out[0].ClaimCount)
}

func TestBuildPeakTimesKeepsBucketsUnique(t *testing.T) {
	base := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	var stamps []time.Time
	for i := 0; i < 25; i++ {
		stamps = append(stamps, base.Add(time.Duration(i)*2*time.Minute))
	}
	stamps = append(stamps, base.Add(time.Hour))

	peaks := BuildPeakTimes(stamps, time.UTC)

	seen := map[[2]any]bool{}
	total := 0
	for _, p := range peaks {
		key := [2]any{p.DayOfWeek, p.TimeOfDay}
		require.False(t, seen[key], "duplicate bucket %v", key)
		seen[key] = true
		total += p.ClaimCount
	}
	require.Equal(t, len(stamps), total)
	require.Equal(t, 25, peaks[0].ClaimCount)
	require.Equal(t, "19:00", peaks[1].TimeOfDay)
}

func TestDecodeRowFromTriggerPayload(t *testing.T) {
	payload := json.RawMessage(`{
		"id": "8b0f1c52-3f5e-4f45-9a0e-4a1f0f2b6a11",
		"item_id": "item-1",
		"title": "Half price tacos",
		"description": "",
		"terms": "",
		"start_date": null,
		"end_date": "2024-03-04T10:00:00.123456+00:00",
		"max_claims": 10,
		"per_user_limit": null,
		"currently_claimed": 9,
		"peak_times": [{"dayOfWeek": 1, "timeOfDay": "09:00", "claimCount": 3}],
		"is_active": true,
		"created_at": "2024-03-01T08:00:00+00:00",
		"last_updated": "2024-03-03T08:00:00+00:00"
	}`)

	d, err := DecodeRow(payload)
	require.NoError(t, err)
	require.Equal(t, "Half price tacos", d.Title)
	require.NotNil(t, d.Validity.EndDate)
	require.Nil(t, d.Validity.StartDate)
	require.Equal(t, 10, d.MaxClaimsValue())
	require.Nil(t, d.Limits.PerUserLimit)
	require.Equal(t, 9, d.Analytics.CurrentlyClaimed)
	require.Len(t, d.Analytics.PeakTimes, 1)
	require.True(t, d.Status.IsActive)
}

func TestDecodeRowNull(t *testing.T) {
	d, err := DecodeRow(json.RawMessage("null"))
	require.NoError(t, err)
	require.Nil(t, d)

	_, err = DecodeRow(json.RawMessage(`{"id": 5}`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeClaim(t *testing.T) {
	c, err := DecodeClaim(json.RawMessage(`{
		"id": "0c1d5d3e-6d8f-4b8e-9e57-7d0f1f2e3a44",
		"deal_id": "8b0f1c52-3f5e-4f45-9a0e-4a1f0f2b6a11",
		"user_id": "u-1",
		"claimed_at": null
	}`))
	require.NoError(t, err)
	require.Equal(t, "u-1", c.UserID)
	require.Nil(t, c.Timestamp)

	_, err = DecodeClaim(json.RawMessage(`{"user_id": "u-1"}`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPeakTimesScan(t *testing.T) {
	var p PeakTimes
	require.NoError(t, p.Scan([]byte(`[{"dayOfWeek":5,"timeOfDay":"21:00","claimCount":2}]`)))
	require.Equal(t, PeakTimes{{DayOfWeek: 5, TimeOfDay: "21:00", ClaimCount: 2}}, p)

	v, err := PeakTimes(nil).Value()
	require.NoError(t, err)
	require.Equal(t, []byte("[]"), v)
}
