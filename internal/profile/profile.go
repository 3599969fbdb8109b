// Package profile builds the intraday TPO market profile: a 20 bucket
// histogram of closes over the session range, its point of control and
// the value area around it.
package profile

import (
	"hybrid-grid-bot-go/internal/models"
)

// MinSessionBars is the number of bars a session must exceed before a
// histogram is computed.
const MinSessionBars = 10

const dayLayout = "2006-01-02"

// Calculator owns the session profile of one instrument.
type Calculator struct {
	valueAreaPct float64
	session      models.SessionProfile
}

// NewCalculator creates a calculator targeting valueAreaPct percent coverage.
func NewCalculator(valueAreaPct float64) *Calculator {
	return &Calculator{valueAreaPct: valueAreaPct}
}

// Session returns a copy of the current session profile.
func (c *Calculator) Session() models.SessionProfile {
	return c.session
}

// Restore replaces the session profile, e.g. from a persisted snapshot.
func (c *Calculator) Restore(s models.SessionProfile) {
	c.session = s
}

// Update folds bar into the session and, once the session is long enough,
// rebuilds the histogram from the most recent closes. closes must end
// with bar's close.
func (c *Calculator) Update(bar models.Bar, closes []float64) models.SessionProfile {
	day := bar.Timestamp.UTC().Format(dayLayout)
	s := &c.session

	if s.Bars == 0 || day != s.Day {
		*s = models.SessionProfile{
			Day:  day,
			High: bar.High,
			Low:  bar.Low,
			Bars: 1,
		}
	} else {
		if bar.High > s.High {
			s.High = bar.High
		}
		if bar.Low < s.Low {
			s.Low = bar.Low
		}
		s.Bars++
	}

	if s.Bars > MinSessionBars {
		n := s.Bars
		if len(closes) < n {
			n = len(closes)
		}
		c.compute(closes[len(closes)-n:])
	}
	return c.session
}

func (c *Calculator) compute(closes []float64) {
	s := &c.session
	s.Histogram = [models.ProfileBuckets]int{}
	s.Valid = false

	width := (s.High - s.Low) / models.ProfileBuckets
	if width <= 0 || len(closes) == 0 {
		return
	}

	for _, px := range closes {
		s.Histogram[BucketIndex(s.High, width, px)]++
	}

	poc, vah, val := ValueArea(s.Histogram, c.valueAreaPct)
	s.POC = BucketPrice(s.High, width, poc)
	s.VAH = BucketPrice(s.High, width, vah)
	s.VAL = BucketPrice(s.High, width, val)
	s.VARangePct = 0
	if s.VAL > 0 {
		s.VARangePct = (s.VAH - s.VAL) / s.VAL * 100
	}
	s.Valid = true
}

// BucketIndex bins px by its distance from the session high. Index 0 is
// the bucket touching the high.
func BucketIndex(high, width, px float64) int {
	idx := int((high - px) / width)
	if idx < 0 {
		return 0
	}
	if idx >= models.ProfileBuckets {
		return models.ProfileBuckets - 1
	}
	return idx
}

// BucketPrice is the centre price of bucket idx.
func BucketPrice(high, width float64, idx int) float64 {
	return high - width*(float64(idx)+0.5)
}

// ValueArea returns the POC bucket and the bucket indices bounding the
// value area. vahIdx <= pocIdx <= valIdx since index 0 is the top.
// Expansion moves toward the heavier neighbour; ties go to the high side.
func ValueArea(hist [models.ProfileBuckets]int, pct float64) (pocIdx, vahIdx, valIdx int) {
	total := 0
	for i, n := range hist {
		total += n
		if n > hist[pocIdx] {
			pocIdx = i
		}
	}

	vahIdx, valIdx = pocIdx, pocIdx
	covered := float64(hist[pocIdx])
	target := float64(total) * pct / 100

	for covered < target {
		canUp := vahIdx > 0
		canDown := valIdx < models.ProfileBuckets-1
		if !canUp && !canDown {
			break
		}
		switch {
		case canUp && (!canDown || hist[vahIdx-1] >= hist[valIdx+1]):
			vahIdx--
			covered += float64(hist[vahIdx])
		default:
			valIdx++
			covered += float64(hist[valIdx])
		}
	}
	return pocIdx, vahIdx, valIdx
}
