// Package engine owns the cache record and the published calendar state.
//
// Every input (clock ticks, location updates, pin changes, fetch results,
// state reads) arrives as a Message on one inbox and is handled by the
// goroutine running Run, so the record and state are never shared. A
// refetch bumps the request epoch and cancels the fetch in flight; any
// result tagged with an older epoch is dropped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"shabbatcal/internal/cache"
	"shabbatcal/internal/content"
	"shabbatcal/internal/estimate"
	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
	"shabbatcal/internal/provider"
	"shabbatcal/internal/snapshot"
	"shabbatcal/internal/week"
	"shabbatcal/internal/window"
)

// ErrStopped is returned by Send and State once Run has returned.
var ErrStopped = errors.New("engine: stopped")

const (
	defaultInboxSize = 64
	reasonRefresh    = "refresh"
)

// Fetcher is the calendar provider. *provider.Client implements it.
type Fetcher interface {
	Current(ctx context.Context, q provider.Query) (model.Payload, error)
	Range(ctx context.Context, q provider.RangeQuery) (model.Payload, error)
}

// Options configures an Engine.
type Options struct {
	Fetcher Fetcher
	// Store defaults to an in-memory store.
	Store cache.Store
	// Location is the zone calendar days are computed in; defaults to
	// time.Local.
	Location *time.Location
	// Coord is the position used until a LocationUpdate arrives.
	Coord model.Coord
	// Label is published when the provider returns no location name.
	Label string

	Week        week.Identifier
	DriftKm     float64
	HorizonDays int
	InboxSize   int

	// OnPublish, if set, is called on the engine goroutine after every
	// publication. It must not block or call Send.
	OnPublish func(State)
}

// Engine is the calendar orchestrator. Create it with New and start it
// with Run.
type Engine struct {
	opts  Options
	gate  cache.Gate
	loc   *time.Location
	inbox chan Message
	done  chan struct{}

	// Fields below are owned by the Run goroutine.
	ctx      context.Context
	record   *model.CacheRecord
	coord    model.Coord
	pin      *cache.Pin
	epoch    uint64
	fetchCtx context.Context
	cancel   context.CancelFunc
	inflight bool
	// eventsRef is the reference day the published events were built for.
	eventsRef time.Time
	state     State
}

// New validates opts and returns an Engine that is not yet running.
func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if opts.Store == nil {
		opts.Store = cache.NewRecordStore(cache.NewMemoryBackend())
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = window.DefaultHorizonDays
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	return &Engine{
		opts:  opts,
		gate:  cache.Gate{Week: opts.Week, DriftKm: opts.DriftKm},
		loc:   opts.Location,
		inbox: make(chan Message, opts.InboxSize),
		done:  make(chan struct{}),
		coord: opts.Coord,
		state: State{Status: StatusPending, Location: opts.Coord},
	}, nil
}

// Run loads the stored record and handles messages until ctx is done.
// It must be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	defer close(e.done)
	defer e.cancelFetch()

	rec, err := e.opts.Store.Load(ctx)
	if err != nil {
		appLog.Error("cache load failed; starting empty", err)
	} else if rec != nil {
		e.record = rec
		appLog.Info("cache record loaded", "week", rec.WeekKey, "fetched_at", rec.FetchedAt.Format(time.RFC3339))
	}

	for {
		select {
		case <-ctx.Done():
			appLog.Info("engine stopping")
			return nil
		case m := <-e.inbox:
			e.handle(m)
		}
	}
}

// Send queues m for the engine goroutine.
func (e *Engine) Send(ctx context.Context, m Message) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.inbox <- m:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the most recently published state.
func (e *Engine) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := e.Send(ctx, stateQuery{reply: reply}); err != nil {
		return State{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-e.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// deliver hands an internal result back to the engine goroutine, giving up
// once Run has returned.
func (e *Engine) deliver(m Message) {
	select {
	case e.inbox <- m:
	case <-e.done:
	}
}

func (e *Engine) handle(m Message) {
	switch m := m.(type) {
	case Tick:
		e.trigger(m.Now, false)
	case Refresh:
		e.trigger(m.Now, true)
	case LocationUpdate:
		e.coord = m.Coord
		if e.pin != nil {
			// Pinned coordinates win until Unpin.
			appLog.Debug("location update while pinned", "lat", m.Coord.Lat, "lon", m.Coord.Lon)
			return
		}
		e.trigger(m.Now, false)
	case Pin:
		e.onPin(m)
	case Unpin:
		if e.pin == nil {
			return
		}
		e.pin = nil
		appLog.Info("pin cleared")
		e.trigger(m.Now, false)
	case fetchDone:
		e.onFetched(m)
	case rangeDone:
		e.onRange(m)
	case stateQuery:
		m.reply <- e.state.clone()
	default:
		appLog.Warn("engine: unknown message", "type", fmt.Sprintf("%T", m))
	}
}

func (e *Engine) trigger(now time.Time, force bool) {
	now = now.In(e.loc)
	reason := e.decide(now)
	switch {
	case force:
		e.startFetch(now, reasonRefresh)
	case reason.Refetch():
		e.startFetch(now, reason.String())
	default:
		e.publishCached(now, reason)
	}
}

func (e *Engine) decide(now time.Time) cache.Reason {
	if e.pin != nil {
		if rec := e.record; rec != nil && !e.matchesPin(rec) {
			// The last pinned fetch failed; the record belongs to other inputs.
			return cache.ReasonPinChanged
		}
		return e.gate.DecidePinned(e.record, e.pin, *e.pin)
	}
	if e.record != nil && e.record.Pinned {
		// A record fetched for a pin never satisfies automatic mode.
		return cache.ReasonPinChanged
	}
	return e.gate.Decide(e.record, now, e.coord)
}

func (e *Engine) matchesPin(rec *model.CacheRecord) bool {
	return rec.Pinned &&
		rec.Location == e.pin.Coord &&
		rec.WeekKey == e.opts.Week.Identify(e.pin.Date)
}

func (e *Engine) onPin(m Pin) {
	next := cache.Pin{Date: model.DayOf(m.Date.In(e.loc)), Coord: m.Coord}
	reason := e.gate.DecidePinned(e.record, e.pin, next)
	e.pin = &next
	if !reason.Refetch() && e.record != nil && !e.matchesPin(e.record) {
		// The previous pinned fetch failed; the record belongs to other inputs.
		reason = cache.ReasonPinChanged
	}
	appLog.Info("pin set", "date", model.DateKey(next.Date), "reason", reason.String())

	now := m.Now.In(e.loc)
	if reason.Refetch() {
		e.startFetch(now, reason.String())
		return
	}
	e.publishCached(now, reason)
}

// target describes what a fetch is for. It travels with the fetch so the
// result is applied to the inputs that produced it.
type target struct {
	now    time.Time
	ref    time.Time
	key    model.WeekKey
	coord  model.Coord
	pinned bool
	reason string
}

func (e *Engine) target(now time.Time, reason string) target {
	if e.pin != nil {
		return target{
			now:    now,
			ref:    e.pin.Date,
			key:    e.opts.Week.Identify(e.pin.Date),
			coord:  e.pin.Coord,
			pinned: true,
			reason: reason,
		}
	}
	return target{
		now:    now,
		ref:    model.DayOf(now),
		key:    e.opts.Week.Identify(now),
		coord:  e.coord,
		reason: reason,
	}
}

// begin supersedes any fetch in flight and returns the new epoch.
func (e *Engine) begin() uint64 {
	e.cancelFetch()
	e.epoch++
	e.fetchCtx, e.cancel = context.WithCancel(e.ctx)
	e.inflight = true
	return e.epoch
}

func (e *Engine) cancelFetch() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) startFetch(now time.Time, reason string) {
	tg := e.target(now, reason)
	epoch := e.begin()
	ctx := e.fetchCtx

	q := provider.Query{Coord: tg.coord, Location: e.loc}
	if tg.pinned {
		q.Date = tg.ref
	} else {
		// Query by the cycle's Friday so a Saturday night asks for the
		// coming cycle rather than the one that just ended.
		q.Date = e.opts.Week.Boundary(now)
	}

	appLog.Info("snapshot fetch start", "epoch", epoch, "reason", reason, "week", tg.key, "pinned", tg.pinned)
	go func() {
		p, err := e.opts.Fetcher.Current(ctx, q)
		e.deliver(fetchDone{epoch: epoch, target: tg, payload: p, err: err})
	}()
}

func (e *Engine) startRange(epoch uint64, tg target) {
	ctx := e.fetchCtx
	q := provider.RangeQuery{
		Start:    tg.ref,
		End:      tg.ref.AddDate(0, 0, e.opts.HorizonDays),
		Coord:    tg.coord,
		Location: e.loc,
	}
	appLog.Debug("range fetch start", "epoch", epoch, "start", model.DateKey(q.Start), "end", model.DateKey(q.End))
	go func() {
		p, err := e.opts.Fetcher.Range(ctx, q)
		e.deliver(rangeDone{epoch: epoch, target: tg, payload: p, err: err})
	}()
}

func (e *Engine) onFetched(r fetchDone) {
	if r.epoch != e.epoch {
		appLog.Debug("discarding superseded fetch", "epoch", r.epoch, "latest", e.epoch)
		return
	}

	if r.err != nil {
		e.inflight = false
		appLog.Error("snapshot fetch failed; publishing estimate", r.err, "epoch", r.epoch)
		e.publishEstimate(r.target, statusFor(r.err), nil)
		return
	}

	snap, frags, err := snapshot.Parse(r.payload)
	events := window.Build(frags, r.target.ref, e.opts.HorizonDays)
	if err != nil {
		e.inflight = false
		appLog.Warn("snapshot incomplete; publishing estimate", "err", err.Error(), "epoch", r.epoch)
		e.publishEstimate(r.target, statusFor(err), events)
		return
	}
	if snap.LocationLabel == "" {
		snap.LocationLabel = e.opts.Label
	}

	rec := model.CacheRecord{
		Snapshot:  snap,
		WeekKey:   r.target.key,
		Location:  r.target.coord,
		FetchedAt: r.target.now,
		Pinned:    r.target.pinned,
	}
	if err := e.opts.Store.Save(e.ctx, rec); err != nil {
		appLog.Error("cache save failed", err, "week", rec.WeekKey)
	}
	e.record = &rec
	e.eventsRef = r.target.ref

	e.startRange(r.epoch, r.target)
	st := e.newState(r.target, snap, StatusOK, events)
	st.Partial = true
	e.publish(st)
}

func (e *Engine) onRange(r rangeDone) {
	if r.epoch != e.epoch {
		appLog.Debug("discarding superseded range fetch", "epoch", r.epoch, "latest", e.epoch)
		return
	}
	e.inflight = false
	st := e.state.clone()
	st.Partial = false
	if r.err != nil {
		appLog.Warn("range fetch failed; keeping primary events", "err", r.err.Error(), "epoch", r.epoch)
		e.publish(st)
		return
	}

	st.Events = window.Build(r.payload.Fragments, r.target.ref, e.opts.HorizonDays)
	st.UpdatedAt = r.target.now
	e.eventsRef = r.target.ref
	e.publish(st)
}

// publishCached republishes the stored record. When the published events
// were built for another day it also starts a range fetch.
func (e *Engine) publishCached(now time.Time, reason cache.Reason) {
	tg := e.target(now, reason.String())
	rec := e.record
	tg.key, tg.coord = rec.WeekKey, rec.Location

	var events []model.Event
	sameDay := e.eventsRef.Equal(tg.ref)
	if sameDay {
		events = e.state.Events
	}
	st := e.newState(tg, rec.Snapshot, StatusOK, events)
	if !sameDay && !e.inflight {
		e.startRange(e.begin(), tg)
		st.Partial = true
	}
	e.publish(st)
}

func (e *Engine) publishEstimate(tg target, status Status, events []model.Event) {
	ref := tg.now
	if tg.pinned {
		ref = tg.ref
	}
	snap := estimate.Snapshot(ref, e.opts.Week, e.opts.Label)
	e.publish(e.newState(tg, snap, status, events))
}

func (e *Engine) newState(tg target, snap model.Snapshot, status Status, events []model.Event) State {
	st := State{
		Snapshot:  snap,
		Events:    slices.Clone(events),
		WeekKey:   tg.key,
		Location:  tg.coord,
		Status:    status,
		Reason:    tg.reason,
		Pinned:    tg.pinned,
		UpdatedAt: tg.now,
	}
	if tg.pinned {
		d := tg.ref
		st.PinDate = &d
	}
	if e.record != nil && status == StatusOK {
		st.FetchedAt = e.record.FetchedAt
	}
	resolvePeriod(&st)
	return st
}

func (e *Engine) publish(st State) {
	e.state = st
	appLog.Info("state published",
		"status", st.Status,
		"week", st.WeekKey,
		"reason", st.Reason,
		"events", len(st.Events),
		"estimated", st.Snapshot.Estimated,
	)
	if e.opts.OnPublish != nil {
		e.opts.OnPublish(st.clone())
	}
}

// resolvePeriod attaches the content entry for the snapshot's period name.
func resolvePeriod(st *State) {
	name := st.Snapshot.Name
	if name == "" {
		return
	}
	switch st.Snapshot.NameSource {
	case model.NameFromPortion:
		p, err := content.LookupPortion(name)
		if err != nil {
			appLog.Debug("no content for portion", "name", name)
			return
		}
		st.Reading = &p
	case model.NameFromHoliday:
		h, err := content.LookupHoliday(name)
		if err != nil {
			appLog.Debug("no content for holiday", "name", name)
			return
		}
		st.Holiday = &h
	}
}

func statusFor(err error) Status {
	switch {
	case provider.IsDecodeError(err):
		return StatusDecodeFailed
	case errors.Is(err, snapshot.ErrIncompleteSnapshot):
		return StatusIncompleteSnapshot
	default:
		return StatusFetchFailed
	}
}
