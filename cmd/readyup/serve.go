package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/readyup"
	"github.com/loykin/readyup/internal/logger"
	"github.com/loykin/readyup/internal/report"
	"github.com/loykin/readyup/internal/server"
	"github.com/loykin/readyup/internal/store"
	storefactory "github.com/loykin/readyup/internal/store/factory"
	tlsutil "github.com/loykin/readyup/internal/tls"
)

func createServeCommand(global *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the readiness daemon with an HTTP API",
		Long: `Serve starts a long-lived daemon. Clients submit service graphs over
HTTP and poll for the resulting reports. Finished runs are persisted
when a store is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(global, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", ":8080", "API listen address")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "/api", "API base path")
	return cmd
}

func serve(global *GlobalFlags, flags *ServeFlags) error {
	logCfg := logger.Config{}
	storeDSN := ""
	maxConc := 0
	var tlsCfg *tlsutil.ServerConfig

	if global.ConfigPath != "" {
		fc, err := readyup.LoadConfig(global.ConfigPath)
		if err != nil {
			return &exitError{code: exitBadGraph, err: err}
		}
		if fc.Log != nil {
			logCfg = *fc.Log
		}
		if fc.Orchestrator != nil {
			storeDSN = fc.Orchestrator.StoreDSN
			maxConc = fc.Orchestrator.MaxConcurrency
		}
		if fc.Server != nil {
			if fc.Server.Listen != "" {
				flags.Listen = fc.Server.Listen
			}
			if fc.Server.BasePath != "" {
				flags.BasePath = fc.Server.BasePath
			}
			tlsCfg = fc.Server.TLS
		}
	}
	log := logCfg.New()

	if err := readyup.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	reg := server.NewRegistry(log)
	reg.MaxConcurrency = maxConc
	if storeDSN != "" {
		reg.OnFinished = func(rep *report.RunReport) {
			saveReport(log, storeDSN, rep)
		}
	}

	router := server.NewRouter(reg, flags.BasePath)
	srv := &http.Server{
		Addr:              flags.Listen,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil && tlsCfg.Enabled {
			tc, err := tlsutil.ServerTLS(*tlsCfg)
			if err != nil {
				errCh <- err
				return
			}
			srv.TLSConfig = tc
			log.Info("daemon listening", "addr", flags.Listen, "tls", true)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Info("daemon listening", "addr", flags.Listen)
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func saveReport(log *slog.Logger, dsn string, rep *report.RunReport) {
	st, err := storefactory.NewFromDSN(dsn)
	if err != nil {
		log.Error("run store unavailable", "error", err)
		return
	}
	defer func() { _ = st.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("run store schema failed", "error", err)
		return
	}
	runID := "run-" + rep.StartedAt.UTC().Format("20060102T150405")
	runRec, svcRecs := store.FromReport(runID, rep)
	if err := st.SaveRun(ctx, runRec, svcRecs); err != nil {
		log.Error("saving run failed", "error", err)
	}
}
