package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"go-healthwatch/internal/report"
	"go-healthwatch/internal/scheduler"
	"go-healthwatch/internal/server"
)

const (
	shutdownTimeout = 30 * time.Second
	taskTimeout     = 5 * time.Minute
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring pass over websites, the database and the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n := newNotifier(cfg.AlertConfig(), cfg, logger)
			st, _ := openStore(ctx, cfg, n, logger)
			defer st.Close()

			rep := newRunner(cfg, st, n, logger).Run(ctx)
			if !quiet {
				fmt.Fprint(cmd.OutOrStdout(), report.Render(rep, cfg.Thresholds()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the run report")
	return cmd
}

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Re-check recently persisted rows and alert on anything still failing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidateAnalyzer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n := newNotifier(cfg.AnalyzerAlertConfig(), cfg, logger)
			st, ok := openStore(ctx, cfg, n, logger)
			if !ok {
				return errors.New("status store unavailable")
			}
			defer st.Close()

			alerts := newAnalyzer(cfg, st, n, logger).Run(ctx)
			if !quiet {
				fmt.Fprint(cmd.OutOrStdout(), report.RenderAnalysis(alerts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the alert list")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Schedule runs and analyses and expose health and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n := newNotifier(cfg.AlertConfig(), cfg, logger)
			onCall := newNotifier(cfg.AnalyzerAlertConfig(), cfg, logger)
			stores := newStoreHolder(cfg, n, logger)
			stores.Get(ctx)
			state := &server.State{}

			sched := scheduler.New(logger, taskTimeout)
			if err := sched.Add("run", cfg.RunSchedule, func(ctx context.Context) {
				state.SetRun(newRunner(cfg, stores.Get(ctx), n, logger).Run(ctx))
			}); err != nil {
				return fmt.Errorf("RUN_SCHEDULE: %w", err)
			}
			if err := sched.Add("analyze", cfg.AnalyzeSchedule, func(ctx context.Context) {
				state.SetAnalysis(time.Now(), newAnalyzer(cfg, stores.Get(ctx), onCall, logger).Run(ctx))
			}); err != nil {
				return fmt.Errorf("ANALYZE_SCHEDULE: %w", err)
			}

			srv := server.New(server.ServerConfig{Port: cfg.HTTPPort}, state, sched.Tasks, logger)
			if err := srv.Start(); err != nil {
				return err
			}
			sched.Start()

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sched.Stop(shutdownCtx)
			return multierr.Combine(srv.Shutdown(shutdownCtx), stores.Close())
		},
	}
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked and validate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.setup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, kv := range cfg.Masked() {
				fmt.Fprintf(out, "%-22s %s\n", kv[0], kv[1])
			}
			return cfg.ValidateServe()
		},
	}
}
