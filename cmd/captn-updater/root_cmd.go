package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

var (
	flagConfigFile string
	flagDryRun     bool
	flagRun        bool
	flagFilters    []string
	flagLogLevel   string
	flagClearLogs  bool
	flagDaemon     bool
	flagForceLock  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to the updater config file")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "log planned updates without applying them")
	rootCmd.PersistentFlags().BoolVar(&flagRun, "run", false, "force a real run even if config says dry-run")
	rootCmd.PersistentFlags().StringArrayVar(&flagFilters, "filter", nil, "name=<glob> container name filter, repeatable (OR-semantics)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug|info|warning|error|critical")
	rootCmd.PersistentFlags().BoolVar(&flagClearLogs, "clear-logs", false, "log that log truncation was requested (no log file is truncated)")
	rootCmd.PersistentFlags().BoolVar(&flagDaemon, "daemon", false, "accepted but not acted on; the updater still runs once")
	rootCmd.PersistentFlags().BoolVar(&flagForceLock, "force-lock", false, "steal the run lock from a stale/stuck instance")
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "captn-updater",
	Short: "updates containers to newer images following per-container rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func nameFilterValues() []string {
	values := make([]string, 0, len(flagFilters))
	for _, f := range flagFilters {
		values = append(values, filterGlob(f))
	}
	return values
}

// filterGlob extracts the glob from a "name=<glob>" flag value, or
// returns it unchanged if the "name=" prefix is absent.
func filterGlob(f string) string {
	const prefix = "name="
	if len(f) > len(prefix) && f[:len(prefix)] == prefix {
		return f[len(prefix):]
	}
	return f
}

func runOnce(ctx context.Context) error {
	deps, err := Initialize(flagConfigFile, flagLogLevel)
	if err != nil {
		return err
	}

	if flagClearLogs {
		deps.Runner.Logger.Info("log file truncation requested via --clear-logs")
	}

	if flagDryRun {
		deps.Runner.Config.General.DryRun = true
	}

	rep, err := deps.Runner.Run(ctx, RunFlags{
		ForceRun:    flagRun,
		NameFilters: nameFilterValues(),
		ForceLock:   flagForceLock,
	})
	if err != nil {
		return err
	}

	for state, count := range rep.CountByState() {
		fmt.Printf("%s: %d\n", state, count)
	}
	if rep.RunErrors != nil && len(rep.RunErrors.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d non-fatal error(s) during the run:\n%s\n", len(rep.RunErrors.Errors), rep.RunErrors.Error())
	}
	return nil
}
