package profile

import (
	"testing"
	"time"

	"hybrid-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func bar(ts time.Time, high, low, close float64) models.Bar {
	return models.Bar{Timestamp: ts, Open: close, High: high, Low: low, Close: close}
}

// feed runs the closes through the calculator as one session, using
// [low, high] as the range of the first bar.
func feed(c *Calculator, start time.Time, high, low float64, closes []float64) models.SessionProfile {
	var s models.SessionProfile
	for i, px := range closes {
		h, l := px, px
		if i == 0 {
			h, l = high, low
		}
		s = c.Update(bar(start.Add(time.Duration(i)*time.Minute), h, l, px), closes[:i+1])
	}
	return s
}

func assertProfileInvariant(t *testing.T, s models.SessionProfile) {
	t.Helper()
	if !s.Valid {
		return
	}
	assert.LessOrEqual(t, s.VAL, s.POC)
	assert.LessOrEqual(t, s.POC, s.VAH)
	assert.GreaterOrEqual(t, s.VAL, s.Low)
	assert.LessOrEqual(t, s.VAH, s.High)
}

func TestProfileInvalidUntilMoreThanTenBars(t *testing.T) {
	c := NewCalculator(70)
	closes := []float64{105, 104, 106, 105, 103, 107, 105, 104, 106, 105}
	s := feed(c, day1, 110, 100, closes)
	assert.Equal(t, 10, s.Bars)
	assert.False(t, s.Valid)

	s = c.Update(bar(day1.Add(10*time.Minute), 105, 105, 105), append(closes, 105))
	assert.Equal(t, 11, s.Bars)
	assert.True(t, s.Valid)
	assertProfileInvariant(t, s)
}

// Session range [100, 110] with width 0.5 buckets; the eighth bucket
// (index 7, centre 106.25) holds the most closes.
func TestProfilePOCAndValueArea(t *testing.T) {
	c := NewCalculator(70)
	closes := []float64{
		106.3, 106.3, 106.3, 106.3, 106.3, // bucket 7
		106.8, 106.8, 106.8, // bucket 6
		105.8, 105.8, // bucket 8
		108.0, // bucket 4
		102.0, // bucket 16
	}
	s := feed(c, day1, 110, 100, closes)
	require.True(t, s.Valid)

	assert.Equal(t, 110.0, s.High)
	assert.Equal(t, 100.0, s.Low)
	assert.Equal(t, 5, s.Histogram[7])
	assert.InDelta(t, 106.25, s.POC, 1e-9)

	// 70% of 12 is 8.4: POC(5) + bucket 6(3) = 8, then bucket 8(2) = 10
	assert.InDelta(t, 106.75, s.VAH, 1e-9)
	assert.InDelta(t, 105.75, s.VAL, 1e-9)
	assert.InDelta(t, (106.75-105.75)/105.75*100, s.VARangePct, 1e-9)
	assertProfileInvariant(t, s)
}

func TestProfileTieBreaks(t *testing.T) {
	var hist [models.ProfileBuckets]int
	hist[3], hist[9] = 4, 4
	hist[2], hist[4] = 1, 1
	poc, vah, val := ValueArea(hist, 50)
	assert.Equal(t, 3, poc, "ties go to the bucket nearest the high")
	// 50% of 10 is 5: equal neighbours expand the high side first
	assert.Equal(t, 2, vah)
	assert.Equal(t, 3, val)
}

func TestValueAreaStopsAtEdges(t *testing.T) {
	var hist [models.ProfileBuckets]int
	hist[0] = 10
	hist[1] = 5
	poc, vah, val := ValueArea(hist, 90)
	assert.Equal(t, 0, poc)
	assert.Equal(t, 0, vah)
	assert.Equal(t, 1, val, "only the low side can grow from the top edge")

	_, vah, val = ValueArea([models.ProfileBuckets]int{0: 1, 19: 1}, 90)
	assert.Equal(t, 0, vah)
	assert.Equal(t, 19, val)
}

func TestProfileResetsOnDayChange(t *testing.T) {
	c := NewCalculator(70)
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	s := feed(c, day1, 104, 100, closes)
	require.True(t, s.Valid)

	next := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	s = c.Update(bar(next, 120, 119, 119.5), append(closes, 119.5))
	assert.Equal(t, "2025-06-03", s.Day)
	assert.Equal(t, 1, s.Bars)
	assert.Equal(t, 120.0, s.High)
	assert.Equal(t, 119.0, s.Low)
	assert.False(t, s.Valid)
	assert.Equal(t, [models.ProfileBuckets]int{}, s.Histogram)
}

func TestZeroWidthSessionStaysInvalid(t *testing.T) {
	c := NewCalculator(70)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	s := feed(c, day1, 50, 50, closes)
	assert.Equal(t, 20, s.Bars)
	assert.False(t, s.Valid)
}

func TestProfileOnlyUsesSessionCloses(t *testing.T) {
	c := NewCalculator(70)
	// yesterday's closes sit far below today's range and must not be binned
	history := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		history = append(history, 50)
	}
	var s models.SessionProfile
	for i := 0; i < 12; i++ {
		px := 100 + float64(i%3)
		history = append(history, px)
		h, l := px, px
		if i == 0 {
			h, l = 103, 99
		}
		s = c.Update(bar(day1.Add(time.Duration(i)*time.Minute), h, l, px), history)
	}
	require.True(t, s.Valid)
	total := 0
	for _, n := range s.Histogram {
		total += n
	}
	assert.Equal(t, 12, total)
	assertProfileInvariant(t, s)
}

func TestRestore(t *testing.T) {
	c := NewCalculator(70)
	saved := models.SessionProfile{Day: "2025-06-02", High: 10, Low: 9, Bars: 4}
	c.Restore(saved)
	assert.Equal(t, saved, c.Session())

	s := c.Update(bar(day1, 11, 9.5, 10), []float64{10})
	assert.Equal(t, 5, s.Bars)
	assert.Equal(t, 11.0, s.High)
}
