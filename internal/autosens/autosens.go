// Package autosens estimates the sensitivity ratio from recent glucose
// history: how strongly the patient is currently responding relative to
// the profile's insulin sensitivity factor. The estimator is a rolling-
// window median of observed-versus-expected delta ratios, which tolerates
// noisy CGM segments better than a mean.
package autosens

import (
	"math"
	"sort"
	"time"
)

// #region types

// Point is one history sample the estimator consumes. Delta and
// ExpectedDelta are glucose changes per 5 minutes; ProfileSens is the
// profile sensitivity in effect at that sample. Points missing any of the
// three are skipped.
type Point struct {
	Time          time.Time
	Delta         float64
	ExpectedDelta float64
	ProfileSens   float64
}

// Config bounds the estimation window and the returned ratio.
type Config struct {
	Window    time.Duration // lookback from the newest point
	MinPoints int           // below this, the neutral ratio 1.0 is returned
	Min       float64       // ratio clamp lower bound
	Max       float64       // ratio clamp upper bound
}

// DefaultConfig matches the reference estimator: a 3-hour window, at least
// 4 usable points, ratio clipped to [0.7, 1.3].
func DefaultConfig() Config {
	return Config{
		Window:    3 * time.Hour,
		MinPoints: 4,
		Min:       0.7,
		Max:       1.3,
	}
}

// #endregion types

// #region ratio

// Ratio computes the autosens ratio from history points. Deterministic:
// points are sorted by time internally, so caller ordering does not affect
// the result. Returns 1.0 when too few usable points fall in the window.
func Ratio(points []Point, cfg Config) float64 {
	if len(points) == 0 {
		return 1.0
	}

	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Time.Before(pts[j].Time) })

	windowStart := pts[len(pts)-1].Time.Add(-cfg.Window)

	var ratios []float64
	for _, p := range pts {
		if p.Time.Before(windowStart) {
			continue
		}
		if p.Delta == 0 || p.ProfileSens == 0 {
			continue
		}
		r := p.ExpectedDelta / p.Delta
		if r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r) {
			ratios = append(ratios, r)
		}
	}

	if len(ratios) < cfg.MinPoints {
		return 1.0
	}

	med := median(ratios)
	if med < cfg.Min {
		med = cfg.Min
	}
	if med > cfg.Max {
		med = cfg.Max
	}
	return med
}

func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// #endregion ratio
