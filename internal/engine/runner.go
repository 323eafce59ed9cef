package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "shabbatcal/internal/log"
)

const sendTimeout = 5 * time.Second

// Sender accepts engine messages. *Engine implements it.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Runner delivers Tick messages on a cron schedule.
type Runner struct {
	sender Sender
	cron   *cron.Cron
	now    func() time.Time
	ctx    context.Context
}

// NewRunner parses schedule (standard five-field cron syntax or a
// descriptor such as "@every 15m") in loc.
func NewRunner(s Sender, schedule string, loc *time.Location) (*Runner, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &Runner{
		sender: s,
		cron:   cron.New(cron.WithLocation(loc)),
		now:    time.Now,
		ctx:    context.Background(),
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("engine: refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start sends an immediate Tick and then starts the schedule. Ticks stop
// being delivered once ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
	r.tick()
	r.cron.Start()
	appLog.Info("refresh schedule started", "next", r.Next().Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running tick to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// Next returns the next scheduled tick, or the zero time before Start.
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Runner) tick() {
	if r.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, sendTimeout)
	defer cancel()
	if err := r.sender.Send(ctx, Tick{Now: r.now()}); err != nil {
		appLog.Warn("tick dropped", "err", err.Error())
	}
}
