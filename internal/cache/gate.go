// Package cache decides whether the persisted record can be trusted and
// persists it.
package cache

import (
	"math"
	"time"

	"shabbatcal/internal/model"
	"shabbatcal/internal/week"
)

// DefaultDriftKm is the distance a device may move before cached timing
// data is considered stale.
const DefaultDriftKm = 10.0

const earthRadiusKm = 6371.0

// Reason explains a refetch decision. It is only used for logging and
// status; callers that need a yes/no answer use ShouldRefetch.
type Reason int

const (
	ReasonFresh Reason = iota
	ReasonNoRecord
	ReasonElapsed
	ReasonWeekChanged
	ReasonDrift
	ReasonPinChanged
)

func (r Reason) String() string {
	switch r {
	case ReasonFresh:
		return "fresh"
	case ReasonNoRecord:
		return "no_record"
	case ReasonElapsed:
		return "elapsed"
	case ReasonWeekChanged:
		return "week_changed"
	case ReasonDrift:
		return "drift"
	case ReasonPinChanged:
		return "pin_changed"
	default:
		return "unknown"
	}
}

// Refetch reports whether r requires a new fetch.
func (r Reason) Refetch() bool {
	return r != ReasonFresh
}

// Pin fixes the engine to a chosen date and place instead of the live
// clock and device location.
type Pin struct {
	Date  time.Time
	Coord model.Coord
}

// Equal reports whether two pins select the same instant and place.
func (p Pin) Equal(o Pin) bool {
	return p.Date.Equal(o.Date) && p.Coord == o.Coord
}

// Gate holds the thresholds for refetch decisions. The zero value uses the
// default threshold hour and DefaultDriftKm.
type Gate struct {
	Week    week.Identifier
	DriftKm float64
}

func (g Gate) driftKm() float64 {
	if g.DriftKm <= 0 {
		return DefaultDriftKm
	}
	return g.DriftKm
}

// Decide applies the refetch rules in order; the first rule that fires wins.
// An elapsed observance end dominates every other rule.
func (g Gate) Decide(rec *model.CacheRecord, now time.Time, loc model.Coord) Reason {
	switch {
	case rec == nil:
		return ReasonNoRecord
	case !rec.Snapshot.ObservanceEnd.After(now):
		return ReasonElapsed
	case rec.WeekKey != g.Week.Identify(now):
		return ReasonWeekChanged
	case Haversine(rec.Location, loc) > g.driftKm():
		return ReasonDrift
	default:
		return ReasonFresh
	}
}

// ShouldRefetch reports whether the cached record must be replaced.
func (g Gate) ShouldRefetch(rec *model.CacheRecord, now time.Time, loc model.Coord) bool {
	return g.Decide(rec, now, loc).Refetch()
}

// DecidePinned applies the pinned-mode rules. Week and drift checks are
// bypassed: only a pin change or an observance end at or before the pinned
// instant forces a refetch.
func (g Gate) DecidePinned(rec *model.CacheRecord, prev *Pin, next Pin) Reason {
	switch {
	case rec == nil:
		return ReasonNoRecord
	case prev == nil || !prev.Equal(next):
		return ReasonPinChanged
	case !rec.Snapshot.ObservanceEnd.After(next.Date):
		return ReasonElapsed
	default:
		return ReasonFresh
	}
}

// ShouldRefetchPinned reports whether a pinned record must be replaced.
func (g Gate) ShouldRefetchPinned(rec *model.CacheRecord, prev *Pin, next Pin) bool {
	return g.DecidePinned(rec, prev, next).Refetch()
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b model.Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
