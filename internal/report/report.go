// Package report renders engine state and lookups for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"shabbatcal/internal/content"
	"shabbatcal/internal/engine"
	"shabbatcal/internal/model"
	"shabbatcal/internal/week"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

const timeLayout = "Mon 2006-01-02 15:04"

// Options controls rendering.
type Options struct {
	Format    Format
	UseColors bool
	// Location is the zone times are shown in; defaults to each value's own.
	Location *time.Location
}

type palette struct {
	good, warn, bad, dim func(...any) string
}

func (o Options) palette() palette {
	if !o.UseColors {
		return palette{good: fmt.Sprint, warn: fmt.Sprint, bad: fmt.Sprint, dim: fmt.Sprint}
	}
	return palette{
		good: color.New(color.FgGreen, color.Bold).SprintFunc(),
		warn: color.New(color.FgYellow).SprintFunc(),
		bad:  color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:  color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (o Options) clock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if o.Location != nil {
		t = t.In(o.Location)
	}
	return t.Format(timeLayout)
}

func (o Options) clockPtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return o.clock(*t)
}

// WriteState renders a resolved state: the snapshot summary followed by the
// event list.
func WriteState(w io.Writer, st engine.State, opts Options) error {
	if opts.Format == FormatJSON {
		return writeJSON(w, st)
	}
	p := opts.palette()

	summary := tablewriter.NewWriter(w)
	defer func() { _ = summary.Close() }()
	summary.Header([]string{"Field", "Value"})
	summary.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	name := st.Snapshot.Name
	if st.Snapshot.LocalizedName != "" {
		name = fmt.Sprintf("%s (%s)", name, st.Snapshot.LocalizedName)
	}
	rows := [][]string{
		{"Status", statusText(st, p)},
		{"Week", weekText(st.WeekKey)},
		{"Location", st.Snapshot.LocationLabel},
		{"Begins", opts.clock(st.Snapshot.ObservanceStart)},
		{"Ends", opts.clock(st.Snapshot.ObservanceEnd)},
		{"Period", name},
	}
	if st.Reading != nil {
		rows = append(rows, []string{"Reading", fmt.Sprintf("%s %s", st.Reading.Book, st.Reading.Verses)})
	}
	if st.Holiday != nil {
		rows = append(rows, []string{"Holiday", st.Holiday.Summary})
	}
	if st.Pinned && st.PinDate != nil {
		rows = append(rows, []string{"Pinned", model.DateKey(*st.PinDate)})
	}
	if !st.FetchedAt.IsZero() {
		rows = append(rows, []string{"Fetched", p.dim(opts.clock(st.FetchedAt))})
	}
	if err := summary.Bulk(rows); err != nil {
		return err
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(st.Events) == 0 {
		_, err := fmt.Fprintln(w, p.dim("No events in the horizon."))
		return err
	}
	return writeEvents(w, st.Events, opts, p)
}

func writeEvents(w io.Writer, events []model.Event, opts Options, p palette) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Date", "Kind", "Name", "Begins", "Ends"})

	data := make([][]string, 0, len(events))
	for _, ev := range events {
		begins, ends := opts.clockPtr(ev.Start), opts.clockPtr(ev.End)
		kind := p.good(ev.Kind.String())
		if ev.Kind == model.EventFast {
			begins, ends = opts.clockPtr(ev.FastStart), opts.clockPtr(ev.FastEnd)
			kind = p.warn(ev.Kind.String())
		}
		name := ev.Name
		if ev.LocalizedName != "" {
			name = fmt.Sprintf("%s (%s)", ev.Name, ev.LocalizedName)
		}
		data = append(data, []string{model.DateKey(ev.Date), kind, name, begins, ends})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Showing %d event(s)\n", len(events))
	return err
}

// weekText shows a cycle key with its weekday; malformed keys print as is.
func weekText(k model.WeekKey) string {
	d, err := week.ParseKey(k, time.UTC)
	if err != nil {
		return string(k)
	}
	return d.Format("Mon 2006-01-02")
}

func statusText(st engine.State, p palette) string {
	s := string(st.Status)
	if st.Reason != "" {
		s = fmt.Sprintf("%s (%s)", s, st.Reason)
	}
	switch {
	case st.Status == engine.StatusOK:
		return p.good(s)
	case st.Snapshot.Estimated:
		return p.warn(s + ", estimated")
	default:
		return p.bad(s)
	}
}

// WriteWeek renders the cycle an instant belongs to.
func WriteWeek(w io.Writer, at time.Time, key model.WeekKey, boundary time.Time, opts Options) error {
	if opts.Format == FormatJSON {
		return writeJSON(w, struct {
			At       time.Time     `json:"at"`
			WeekKey  model.WeekKey `json:"week_key"`
			Boundary time.Time     `json:"boundary"`
		}{at, key, boundary})
	}
	_, err := fmt.Fprintf(w, "%s -> week %s (boundary %s)\n", opts.clock(at), opts.palette().good(string(key)), model.DateKey(boundary))
	return err
}

// WriteLookup renders a content entry returned by content.Lookup.
func WriteLookup(w io.Writer, v any, opts Options) error {
	if opts.Format == FormatJSON {
		return writeJSON(w, v)
	}

	var rows [][]string
	switch e := v.(type) {
	case content.Portion:
		rows = [][]string{
			{"Portion", e.Name},
			{"Hebrew", e.Hebrew},
			{"Book", e.Book},
			{"Verses", e.Verses},
		}
	case content.Holiday:
		rows = [][]string{
			{"Holiday", e.Name},
			{"Hebrew", e.Hebrew},
			{"Category", e.Category},
			{"Summary", e.Summary},
		}
	default:
		return fmt.Errorf("report: cannot render %T", v)
	}

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	return nil
}
