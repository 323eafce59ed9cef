package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coord is a geographic position in decimal degrees.
type Coord struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lon float64 `json:"longitude" yaml:"longitude"`
}

// WeekKey identifies one observance cycle: the ISO date (YYYY-MM-DD) of the
// cycle's Friday boundary. String order equals chronological order.
type WeekKey string

// FragmentKind is the closed set of provider record kinds. Raw provider
// category text is mapped to a kind once, at decode time.
type FragmentKind int

const (
	KindUnknown FragmentKind = iota
	KindStart                // candle lighting / observance start
	KindEnd                  // havdalah / observance end
	KindHoliday
	KindTimedMarker // zmanim such as fast begin/end
	KindPortion     // weekly reading
)

var kindNames = map[FragmentKind]string{
	KindUnknown:     "unknown",
	KindStart:       "start",
	KindEnd:         "end",
	KindHoliday:     "holiday",
	KindTimedMarker: "timed_marker",
	KindPortion:     "portion",
}

func (k FragmentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Subcategory refines KindHoliday fragments.
type Subcategory int

const (
	SubNone Subcategory = iota
	SubMajor
	SubMinor
	SubFast
	SubModern
	SubShabbat
	SubRoshChodesh
)

// Marker refines KindTimedMarker fragments.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerFastBegin
	MarkerFastEnd
)

// Fragment is one classified provider record. Fragments are consumed by the
// snapshot parser and the event windower and are never persisted.
type Fragment struct {
	// Date is the full timestamp for timed records, or local midnight of the
	// calendar day for date-only records.
	Date  time.Time
	Timed bool

	Kind        FragmentKind
	Subcategory Subcategory
	Marker      Marker

	Title          string
	LocalizedTitle string

	// Major is the provider's "yom tov" flag.
	Major bool
	Note  string
}

// Day returns local midnight of the fragment's calendar date.
func (f Fragment) Day() time.Time {
	return DayOf(f.Date)
}

// Payload is a decoded provider response.
type Payload struct {
	LocationLabel string
	Fragments     []Fragment
}

// Snapshot holds the start/end boundary times of the current observance
// period at a location.
type Snapshot struct {
	ObservanceStart time.Time `json:"observance_start"`
	ObservanceEnd   time.Time `json:"observance_end"`
	LocationLabel   string    `json:"location_label"`

	// Name is the published name of the period (weekly portion or holiday).
	Name          string `json:"name,omitempty"`
	LocalizedName string `json:"localized_name,omitempty"`
	// NameSource says which content index Name belongs to.
	NameSource NameSource `json:"name_source,omitempty"`

	// Estimated is true when the snapshot came from the seasonal estimate
	// rather than the provider.
	Estimated bool `json:"estimated,omitempty"`
}

// NameSource is the origin of a Snapshot's period name.
type NameSource string

const (
	NameFromPortion NameSource = "portion"
	NameFromHoliday NameSource = "holiday"
)

// CacheRecord is the single persisted record. It is replaced wholesale after
// every successful fetch.
type CacheRecord struct {
	Snapshot  Snapshot  `json:"snapshot"`
	WeekKey   WeekKey   `json:"week_key"`
	Location  Coord     `json:"location"`
	FetchedAt time.Time `json:"fetched_at"`
	Pinned    bool      `json:"pinned,omitempty"`
}

// EventKind is the classification of a built Event.
type EventKind int

const (
	EventMajor EventKind = iota
	EventFast
)

func (k EventKind) String() string {
	switch k {
	case EventMajor:
		return "major"
	case EventFast:
		return "fast"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Event is a classified observance within the visibility horizon.
type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LocalizedName string    `json:"localized_name,omitempty"`
	Kind          EventKind `json:"kind"`

	Date          time.Time `json:"date"`
	ReferenceDate time.Time `json:"reference_date"`

	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	FastStart *time.Time `json:"fast_start,omitempty"`
	FastEnd   *time.Time `json:"fast_end,omitempty"`

	Note string `json:"note,omitempty"`

	// Secondary marks an eve or intermediate-day placeholder that a primary
	// fragment for the same holiday may still replace.
	Secondary bool `json:"secondary,omitempty"`
}

// DayOf truncates t to local midnight in t's own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey formats the calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
