// Package cmd is the CLI surface. Grounded on a cobra wiring style
// (Execute()/init() shape, flag declaration conventions) but reduced from
// a daemon-plus-TUI-plus-browser-extension program to a single blocking
// `hfd <repo_id>` invocation — this run has no server to host and nothing
// else to talk to it, so the daemon lock, HTTP bridge, and port-file
// bookkeeping such a program needs are dropped (see DESIGN.md).
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hfdownloader/hfd/internal/config"
	"github.com/hfdownloader/hfd/internal/engine"
	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/plan"
	"github.com/hfdownloader/hfd/internal/history"
	"github.com/hfdownloader/hfd/internal/lock"
	"github.com/hfdownloader/hfd/internal/reporter"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// Version is set via ldflags during build.
var Version = "dev"

// maxKeptLogs bounds how many timestamped debug logs accumulate under the
// logs directory across repeated --verbose runs.
const maxKeptLogs = 10

var rootCmd = &cobra.Command{
	Use:     "hfd <repo_id>",
	Short:   "Download a Hugging Face model or dataset repository",
	Version: Version,
	Args:    cobra.ExactArgs(1),
	RunE:    runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	repoID := args[0]

	configPath, _ := cmd.Flags().GetString("config")
	include, _ := cmd.Flags().GetStringArray("include")
	exclude, _ := cmd.Flags().GetStringArray("exclude")
	localDir, _ := cmd.Flags().GetString("local-dir")
	token, _ := cmd.Flags().GetString("hf_token")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return exitMalformed(fmt.Errorf("loading config: %w", err))
	}
	if localDir != "" {
		cfg.UseLocalDir = true
		cfg.LocalDirBase = localDir
	}
	if token != "" {
		cfg.HFToken = token
	}
	if len(include) == 0 {
		include = cfg.IncludePatterns
	}
	if len(exclude) == 0 {
		exclude = cfg.ExcludePatterns
	}

	if verbose || os.Getenv("HFD_DEBUG") != "" {
		xlog.Enable(config.LogsDir())
		defer xlog.CleanupLogs(maxKeptLogs)
	}

	baseDir := cfg.LocalDirBaseExpanded()
	repoDir := plan.RepoDir(baseDir, repoID)
	dirLock, ok, err := lock.Acquire(repoDir)
	if err != nil {
		return exitFatal(err)
	}
	if !ok {
		return exitFatal(fmt.Errorf("another hfd instance is already downloading into %s", repoDir))
	}
	defer dirLock.Release()

	rep := reporter.New(repoID)
	rep.Start()
	defer rep.Stop()

	summary, runErr := engine.Download(context.Background(), engine.Options{
		RepoID:                    repoID,
		Endpoint:                  cfg.Endpoint,
		LocalDir:                  baseDir,
		Include:                   include,
		Exclude:                   exclude,
		ConcurrentDownloads:       cfg.ConcurrentDownloads,
		ParallelDownloadThreshold: cfg.ParallelDownloadThreshold,
		Verbose:                   verbose,
		Runtime:                   cfg.RuntimeConfig(),
		OnFileStart:               rep.Register,
	})

	if ledger, lerr := history.Open(config.HistoryDBPath()); lerr == nil {
		ledger.Record(history.Entry{
			RepoID:          repoID,
			CompletedAt:     time.Now(),
			FilesTotal:      summary.FilesTotal,
			FilesDownloaded: summary.FilesDownloaded,
			FilesFailed:     len(summary.Failed),
			BytesTotal:      summary.BytesTotal,
			ElapsedMs:       summary.Elapsed.Milliseconds(),
		})
		ledger.Close()
	}

	if runErr == nil {
		return nil
	}
	if isCancelled(runErr) {
		return nil
	}
	return exitFatal(runErr)
}

func isCancelled(err error) bool {
	return err != nil && errkind.Sentinel(errkind.Cancelled).Is(err)
}

// exitCode wraps an error so Execute can map it to the right process exit
// code without cobra's default "print usage on any RunE error" behavior
// firing for runtime (as opposed to argument) failures.
type exitCode struct {
	err  error
	code int
}

func (e *exitCode) Error() string { return e.err.Error() }

func exitFatal(err error) error    { return &exitCode{err: err, code: 1} }
func exitMalformed(err error) error { return &exitCode{err: err, code: 2} }

// Execute runs the root command and exits the process with the mapped
// code: 0 success/cancelled, 1 fatal, 2 malformed arguments.
func Execute() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		// Anything that isn't our own *exitCode came from cobra's argument
		// validation (ExactArgs, unknown flag) rather than runDownload.
		code := 2
		if ec, ok := err.(*exitCode); ok {
			code = ec.code
		}
		fmt.Fprintf(os.Stderr, "hfd: %v\n", err)
		os.Exit(code)
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)

	rootCmd.Flags().String("config", "", "path to an explicit .hfdconfig file")
	rootCmd.Flags().StringArray("include", nil, "glob pattern to include (repeatable)")
	rootCmd.Flags().StringArray("exclude", nil, "glob pattern to exclude (repeatable)")
	rootCmd.Flags().String("local-dir", "", "destination directory (overrides .hfdconfig)")
	rootCmd.Flags().String("hf_token", "", "Hugging Face access token")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate("hfd version {{.Version}}\n")
}
