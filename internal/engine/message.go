package engine

import (
	"slices"
	"time"

	"shabbatcal/internal/content"
	"shabbatcal/internal/model"
)

// Message is an input to the engine. The exported messages are triggers;
// the rest are produced internally.
type Message interface {
	message()
}

// Tick is a clock trigger.
type Tick struct {
	Now time.Time
}

// Refresh forces a refetch regardless of the cache state.
type Refresh struct {
	Now time.Time
}

// LocationUpdate delivers the device's latest position.
type LocationUpdate struct {
	Now   time.Time
	Coord model.Coord
}

// Pin switches to pinned mode for an explicit date and position. Any change
// to either value refetches.
type Pin struct {
	Now   time.Time
	Date  time.Time
	Coord model.Coord
}

// Unpin returns to automatic mode.
type Unpin struct {
	Now time.Time
}

type fetchDone struct {
	epoch   uint64
	target  target
	payload model.Payload
	err     error
}

type rangeDone struct {
	epoch   uint64
	target  target
	payload model.Payload
	err     error
}

type stateQuery struct {
	reply chan State
}

func (Tick) message()           {}
func (Refresh) message()        {}
func (LocationUpdate) message() {}
func (Pin) message()            {}
func (Unpin) message()          {}
func (fetchDone) message()      {}
func (rangeDone) message()      {}
func (stateQuery) message()     {}

// Status is the outcome of the last resolution.
type Status string

const (
	StatusPending            Status = "pending"
	StatusOK                 Status = "ok"
	StatusFetchFailed        Status = "fetch_failed"
	StatusDecodeFailed       Status = "decode_failed"
	StatusIncompleteSnapshot Status = "incomplete_snapshot"
)

// State is what the engine publishes after each trigger.
type State struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Events   []model.Event  `json:"events"`
	WeekKey  model.WeekKey  `json:"week_key,omitempty"`
	Location model.Coord    `json:"location"`

	Status Status `json:"status"`
	// Reason is the cache decision (or "refresh") behind this state.
	Reason string `json:"reason,omitempty"`

	Pinned  bool       `json:"pinned"`
	PinDate *time.Time `json:"pin_date,omitempty"`

	// Partial is set while the horizon fetch for this state is outstanding.
	Partial bool `json:"partial,omitempty"`

	FetchedAt time.Time `json:"fetched_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	Reading *content.Portion `json:"reading,omitempty"`
	Holiday *content.Holiday `json:"holiday,omitempty"`
}

func (s State) clone() State {
	s.Events = slices.Clone(s.Events)
	return s
}
