package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"RivalScanner/internal/app"
	"RivalScanner/internal/config"
	"RivalScanner/internal/domain"
	"RivalScanner/internal/logging"
)

// withApp validates configuration before any adapter or scan exists, then
// runs fn with a signal-aware context.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()
	return fn(ctx, application)
}

// --- scan ---

var scanCmd = &cobra.Command{
	Use:   "scan [industry]",
	Short: "Run one full competitive scan",
	Long: `Run one full competitive scan synchronously.

Examples:
  rivalscanner scan
  rivalscanner scan "Video Games"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		industry := ""
		if len(args) == 1 {
			industry = strings.TrimSpace(args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			scan, err := a.Scan(ctx, industry)
			if err != nil {
				return err
			}
			printScan(scan)
			return nil
		})
	},
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <scan-id>",
	Short: "Append fresh news, alerts and insights to a completed scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			log, err := a.Refresh(ctx, args[0])
			if err != nil {
				return err
			}
			printRefresh(log)
			if log.Status == domain.RefreshFailed {
				return errors.New("refresh finished with errors")
			}
			return nil
		})
	},
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Dispatch due schedules and reconcile stuck scans once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			report, err := a.Sweep(ctx)
			printSuccess("Sweep finished")
			printStatus("Dispatched", "%d", report.Dispatched)
			printStatus("Dispatch failed", "%d", report.DispatchFailed)
			printStatus("Reconciled", "%d", report.Reconciled)
			printStatus("Timed out", "%d", report.TimedOut)
			return err
		})
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled sweeps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Serve(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd, refreshCmd, sweepCmd, serveCmd)
}

func printScan(scan domain.Scan) {
	if scan.Status == domain.ScanCompleted {
		printSuccess("Scan %s completed", scan.ID)
	} else {
		printWarning("Scan %s is %s", scan.ID, scan.Status)
	}
	printStatus("Industry", "%s", scan.Industry)
	printStatus("Competitors", "%d", scan.CompetitorsCount)
	printStatus("Alerts", "%d", scan.AlertsCount)
	printStatus("Insights", "%d", scan.InsightsCount)
	printStatus("News", "%d", scan.NewsCount)
	printStatus("Duration", "%.1fs", scan.DurationSeconds)
}

func printRefresh(log domain.RefreshLog) {
	if log.Status == domain.RefreshSuccess {
		printSuccess("Refresh %s succeeded", log.ID)
	} else {
		printWarning("Refresh %s %s: %s", log.ID, log.Status, log.ErrorMessage)
	}
	printStatus("New alerts", "%d", log.NewAlertsCount)
	printStatus("New insights", "%d", log.NewInsightsCount)
	printStatus("New news", "%d", log.NewNewsCount)
}
