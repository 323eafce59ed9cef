package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shabbatcal/internal/content"
	"shabbatcal/internal/engine"
	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/report"
	"shabbatcal/internal/web"
	"shabbatcal/internal/week"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine on the refresh schedule and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	appLog.Info("shabbatcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"threshold_hour", conf.ThresholdHour,
		"provider_format", conf.Provider.Format,
		"cache_backend", conf.Cache.Backend,
	)

	store, err := openStore(ctx, conf)
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := engine.New(engineOptions(conf, newProviderClient(conf), store))
	if err != nil {
		return err
	}
	engineCtx, stopEngine := context.WithCancel(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()
	// The engine must be gone before the store closes.
	defer func() {
		stopEngine()
		<-engineDone
	}()

	runner, err := engine.NewRunner(eng, conf.RefreshCron, conf.TimeLocation())
	if err != nil {
		return err
	}
	runner.Start(engineCtx)
	defer runner.Stop()

	if err := web.StartServer(ctx, conf, eng); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("shabbatcal exiting")
	return nil
}

var onceTimeout time.Duration

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Resolve the current cycle once and print it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), onceTimeout)
		defer cancel()

		st, err := resolveOnce(ctx, time.Now())
		if err != nil {
			return err
		}
		return report.WriteState(cmd.OutOrStdout(), st, reportOptions(conf))
	},
}

// resolveOnce runs the engine for a single tick and returns the first
// complete publication.
func resolveOnce(ctx context.Context, now time.Time) (engine.State, error) {
	store, err := openStore(ctx, conf)
	if err != nil {
		return engine.State{}, err
	}
	defer store.Close()

	published := make(chan engine.State, 8)
	opts := engineOptions(conf, newProviderClient(conf), store)
	opts.OnPublish = func(st engine.State) {
		select {
		case published <- st:
		default:
		}
	}
	eng, err := engine.New(opts)
	if err != nil {
		return engine.State{}, err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = eng.Run(runCtx) }()

	if err := eng.Send(ctx, engine.Tick{Now: now}); err != nil {
		return engine.State{}, err
	}

	var last engine.State
	for {
		select {
		case st := <-published:
			if !st.Partial {
				return st, nil
			}
			last = st
		case <-ctx.Done():
			if last.Status != "" {
				// Horizon fetch did not finish; the snapshot is still valid.
				return last, nil
			}
			return engine.State{}, ctx.Err()
		}
	}
}

var weekAt string

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Print the cycle key for an instant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loc := conf.TimeLocation()
		at := time.Now().In(loc)
		if weekAt != "" {
			t, err := time.Parse(time.RFC3339, weekAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			at = t.In(loc)
		}
		id := week.Identifier{ThresholdHour: conf.ThresholdHour}
		return report.WriteWeek(cmd.OutOrStdout(), at, id.Identify(at), id.Boundary(at), reportOptions(conf))
	},
}

var lookupIndex string

var lookupCmd = &cobra.Command{
	Use:   "lookup NAME",
	Short: "Resolve a portion or holiday name against the content index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx := content.Index(strings.ToLower(lookupIndex))
		v, err := content.Lookup(idx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return report.WriteLookup(cmd.OutOrStdout(), v, reportOptions(conf))
	},
}

func init() {
	onceCmd.Flags().DurationVar(&onceTimeout, "timeout", 30*time.Second, "Give up after this long")
	weekCmd.Flags().StringVar(&weekAt, "at", "", "Instant in RFC 3339 (default: now)")
	lookupCmd.Flags().StringVar(&lookupIndex, "index", string(content.IndexPortions), "Index to search: portions or holidays")
}
