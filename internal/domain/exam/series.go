package exam

import (
	"fmt"

	"github.com/labledger/labledger/internal/domain/reference"
)

// DefaultRollingWindow is the rolling-mean window used when a query does
// not pick one.
const DefaultRollingWindow = 3

// SeriesQuery selects one patient's history for one test. Zero From/To
// leave that end of the range open.
type SeriesQuery struct {
	PatientID string
	TestCode  string
	From      Date
	To        Date
	Window    int
}

// SeriesPoint is one observation in a series. InRange is set only when a
// reference range is configured for the test.
type SeriesPoint struct {
	Date    Date    `json:"date"`
	Value   float64 `json:"value"`
	InRange *bool   `json:"in_range,omitempty"`
}

// RollingPoint is the rolling mean at one date.
type RollingPoint struct {
	Date Date    `json:"date"`
	Mean float64 `json:"mean"`
}

// SeriesStats summarizes a series.
type SeriesStats struct {
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Latest     float64 `json:"latest"`
	LatestDate Date    `json:"latest_date"`
}

// Series is the charting payload for one patient and test code.
type Series struct {
	PatientID string           `json:"patient_id"`
	TestCode  string           `json:"test_code"`
	Unit      string           `json:"unit"`
	Points    []SeriesPoint    `json:"points"`
	Stats     SeriesStats      `json:"stats"`
	Rolling   []RollingPoint   `json:"rolling"`
	Reference *reference.Range `json:"reference,omitempty"`
}

// Series computes the chronological series, summary statistics, and
// rolling mean for one patient and test code. Responses are cached per
// query until the snapshot is reloaded or the TTL lapses.
func (s *Service) Series(q SeriesQuery) (*Series, error) {
	if q.PatientID == "" {
		return nil, fmt.Errorf("exam: series: patient id required")
	}
	if q.TestCode == "" {
		return nil, fmt.Errorf("exam: series: test code required")
	}
	if q.Window == 0 {
		q.Window = DefaultRollingWindow
	}
	if q.Window < 1 {
		return nil, fmt.Errorf("exam: series: window must be positive")
	}

	key := fmt.Sprintf("series:%s:%s:%s:%s:%d", q.PatientID, q.TestCode, q.From, q.To, q.Window)
	if hit, ok := s.cache.Get(key); ok {
		return hit.(*Series), nil
	}

	series, err := buildSeries(s.Snapshot(), s.refs, q)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, series)
	return series, nil
}

func buildSeries(snap *Snapshot, refs *reference.Table, q SeriesQuery) (*Series, error) {
	band, hasBand := refs.RangeFor(q.TestCode)

	var points []SeriesPoint
	var unit string
	// Patient slices are in canonical order, so the filtered series is
	// already chronological.
	for _, r := range snap.byPatient[q.PatientID] {
		if r.TestCode != q.TestCode {
			continue
		}
		if !q.From.IsZero() && r.CollectionDate.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && r.CollectionDate.After(q.To) {
			continue
		}
		unit = r.Unit
		p := SeriesPoint{Date: r.CollectionDate, Value: r.Value}
		if hasBand {
			in := band.Contains(r.Value)
			p.InRange = &in
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	series := &Series{
		PatientID: q.PatientID,
		TestCode:  q.TestCode,
		Unit:      unit,
		Points:    points,
		Stats:     summarize(points),
		Rolling:   rollingMean(points, q.Window),
	}
	if hasBand {
		series.Reference = &band
	}
	return series, nil
}

func summarize(points []SeriesPoint) SeriesStats {
	stats := SeriesStats{
		Count: len(points),
		Min:   points[0].Value,
		Max:   points[0].Value,
	}
	sum := 0.0
	for _, p := range points {
		if p.Value < stats.Min {
			stats.Min = p.Value
		}
		if p.Value > stats.Max {
			stats.Max = p.Value
		}
		sum += p.Value
	}
	stats.Mean = sum / float64(len(points))
	last := points[len(points)-1]
	stats.Latest = last.Value
	stats.LatestDate = last.Date
	return stats
}

// rollingMean averages a trailing window at each point. Early points use
// however many values exist so the series starts at the first date
// instead of after a warm-up gap.
func rollingMean(points []SeriesPoint, window int) []RollingPoint {
	out := make([]RollingPoint, len(points))
	sum := 0.0
	for i, p := range points {
		sum += p.Value
		if i >= window {
			sum -= points[i-window].Value
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = RollingPoint{Date: p.Date, Mean: sum / float64(n)}
	}
	return out
}
