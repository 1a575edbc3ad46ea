package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/readyup"
	"github.com/loykin/readyup/internal/config"
	"github.com/loykin/readyup/internal/env"
	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/history"
	historyfactory "github.com/loykin/readyup/internal/history/factory"
	"github.com/loykin/readyup/internal/logger"
	"github.com/loykin/readyup/internal/report"
	"github.com/loykin/readyup/internal/store"
	storefactory "github.com/loykin/readyup/internal/store/factory"
)

func createRunCommand(global *GlobalFlags) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Probe the service graph until every service is terminal",
		Long: `Run loads the service graph from the config file, probes each service in
dependency order, and prints a report. The exit code is 0 when every
service became ready, 1 when any service crashed, timed out, or was
skipped, and 2 when the graph itself is invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(global, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Output, "output", "table", "report format: table or json")
	cmd.Flags().IntVar(&flags.MaxConcurrency, "max-concurrency", 0, "max services probing at once (0 = unbounded)")
	cmd.Flags().StringVar(&flags.StoreDSN, "store", "", "persist the report (sqlite:// or postgres:// DSN)")
	cmd.Flags().StringSliceVar(&flags.HistoryDSNs, "history", nil, "export events (clickhouse://, opensearch://, postgres://, sqlite:// DSN, repeatable)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "expose /metrics on this address during the run")
	cmd.Flags().BoolVar(&flags.Quiet, "quiet", false, "suppress progress lines, print only the final report")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "abort the whole run after this duration")
	return cmd
}

func createValidateCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and dependency graph without probing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, specs, err := loadSpecs(global.ConfigPath)
			if err != nil {
				return &exitError{code: exitBadGraph, err: err}
			}
			g, err := graph.New(specs)
			if err != nil {
				return &exitError{code: exitBadGraph, err: err}
			}
			for _, name := range g.Order {
				if err := g.Specs[name].Build(); err != nil {
					return &exitError{code: exitBadGraph, err: err}
				}
			}
			fmt.Printf("configuration valid: %d services\norder: %s\n", len(g.Order), strings.Join(g.Order, ", "))
			return nil
		},
	}
}

// loadSpecs reads the config file and applies global env to each spec.
func loadSpecs(path string) (*config.FileConfig, []graph.Spec, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	fc, err := readyup.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	global, err := fc.GlobalEnv()
	if err != nil {
		return nil, nil, err
	}
	e := env.New()
	if fc.UseOSEnv {
		e.FromOS()
	}
	e.SetAll(global)
	specs := fc.Specs()
	for i := range specs {
		specs[i].Env = e.Merge(specs[i].Env)
	}
	return fc, specs, nil
}

func runGraph(global *GlobalFlags, flags *RunFlags) error {
	fc, specs, err := loadSpecs(global.ConfigPath)
	if err != nil {
		return &exitError{code: exitBadGraph, err: err}
	}

	logCfg := logger.Config{}
	if fc.Log != nil {
		logCfg = *fc.Log
	}
	log := logCfg.New()

	if fc.Orchestrator != nil {
		if flags.MaxConcurrency == 0 {
			flags.MaxConcurrency = fc.Orchestrator.MaxConcurrency
		}
		if flags.StoreDSN == "" {
			flags.StoreDSN = fc.Orchestrator.StoreDSN
		}
		if len(flags.HistoryDSNs) == 0 {
			flags.HistoryDSNs = fc.Orchestrator.HistoryDSNs
		}
		if flags.MetricsListen == "" {
			flags.MetricsListen = fc.Orchestrator.MetricsListen
		}
	}

	if flags.MetricsListen != "" {
		if err := readyup.RegisterMetricsDefault(); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
		go func() {
			if err := readyup.ServeMetrics(flags.MetricsListen); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	sinks := make([]history.Sink, 0, len(flags.HistoryDSNs))
	for _, dsn := range flags.HistoryDSNs {
		sink, err := historyfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("history sink %s: %w", dsn, err)
		}
		sinks = append(sinks, sink)
	}

	runID := fmt.Sprintf("run-%d", time.Now().Unix())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}

	o := readyup.New()
	o.SetLogger(log)
	o.SetMaxConcurrency(flags.MaxConcurrency)
	o.OnTransition(func(name string, from, to report.State, res *report.ServiceResult) {
		if !flags.Quiet {
			printTransition(name, to, res)
		}
		for _, sink := range sinks {
			_ = sink.Send(context.Background(), history.Event{
				Type:       history.EventTransition,
				OccurredAt: time.Now(),
				RunID:      runID,
				Service:    name,
				From:       string(from),
				To:         string(to),
				Detail:     detailOf(res),
				Polls:      pollsOf(res),
				Elapsed:    elapsedOf(res),
			})
		}
	})

	rep, err := o.Run(ctx, specs)
	if err != nil {
		return &exitError{code: exitBadGraph, err: err}
	}

	persistRun(log, runID, rep, flags.StoreDSN, sinks)

	if err := printReport(rep, flags.Output); err != nil {
		return err
	}
	if !rep.AllReady() {
		return &exitError{code: exitNotReady, err: fmt.Errorf("%d of %d services not ready", notReadyCount(rep), len(rep.Services))}
	}
	return nil
}

func persistRun(log *slog.Logger, runID string, rep *report.RunReport, storeDSN string, sinks []history.Sink) {
	runRec, svcRecs := store.FromReport(runID, rep)
	if storeDSN != "" {
		st, err := storefactory.NewFromDSN(storeDSN)
		if err != nil {
			log.Error("run store unavailable", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := st.EnsureSchema(ctx); err == nil {
				if err := st.SaveRun(ctx, runRec, svcRecs); err != nil {
					log.Error("saving run failed", "error", err)
				}
			} else {
				log.Error("run store schema failed", "error", err)
			}
			cancel()
			_ = st.Close()
		}
	}
	for _, sink := range sinks {
		_ = sink.Send(context.Background(), history.Event{
			Type:       history.EventRunFinished,
			OccurredAt: time.Now(),
			RunID:      runID,
			Outcome:    runRec.Outcome,
			Elapsed:    rep.Duration(),
		})
	}
}

func printTransition(name string, to report.State, res *report.ServiceResult) {
	switch to {
	case report.StateProbing:
		fmt.Printf("%-20s probing...\n", name)
	case report.StateReady:
		fmt.Printf("%-20s ready after %d polls (%s)\n", name, res.Polls, res.Elapsed.Round(time.Millisecond))
	case report.StateCrashed, report.StateTimedOut, report.StateSkipped, report.StateCancelled:
		fmt.Printf("%-20s %s: %s\n", name, to, res.Detail)
	}
}

func printReport(rep *report.RunReport, output string) error {
	switch output {
	case "json":
		s, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Println(s)
	case "table", "":
		fmt.Print(rep.Table())
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}

func notReadyCount(rep *report.RunReport) int {
	n := 0
	for _, s := range rep.Services {
		if !s.State.Ready() {
			n++
		}
	}
	return n
}

func detailOf(res *report.ServiceResult) string {
	if res == nil {
		return ""
	}
	return res.Detail
}

func pollsOf(res *report.ServiceResult) int {
	if res == nil {
		return 0
	}
	return res.Polls
}

func elapsedOf(res *report.ServiceResult) time.Duration {
	if res == nil {
		return 0
	}
	return res.Elapsed
}
