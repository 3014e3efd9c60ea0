// Package engine is the façade that wires the manifest resolver, filter,
// planner, and scheduler into one download(repo_id) call. Its shutdown path
// is grounded on a signal.Notify-based pattern (generalized from "stop the
// TUI" to "cancel the one context every in-flight downloader shares"), and
// it sits above the chunked-download orchestration in
// internal/engine/concurrent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hfdownloader/hfd/internal/engine/client"
	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/filter"
	"github.com/hfdownloader/hfd/internal/engine/manifest"
	"github.com/hfdownloader/hfd/internal/engine/plan"
	"github.com/hfdownloader/hfd/internal/engine/scheduler"
	"github.com/hfdownloader/hfd/internal/engine/types"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// Options configures one run of Download.
type Options struct {
	RepoID                    string
	Endpoint                  string
	LocalDir                  string
	Include                   []string
	Exclude                   []string
	ConcurrentDownloads       int
	ParallelDownloadThreshold int64
	Verbose                   bool

	Runtime *types.RuntimeConfig

	// OnFileStart, if set, is called once per file about to be downloaded,
	// and may return a *types.ProgressState the scheduler will update as
	// bytes land — the hook internal/reporter attaches through.
	OnFileStart func(path string, size int64) *types.ProgressState
}

// Download runs one repo download end to end: resolve the manifest, filter
// it, plan local paths and strategies, then run the scheduler over the
// plan. A single process-wide cancellation signal (SIGINT/SIGTERM) stops
// handing out new file jobs, and in-flight chunks abort at their next read,
// leaving the bytes already written on disk for a later resume. Files that
// end as cancelled are not counted as failures; a run whose only
// unfinished files were cancelled returns errkind.Cancelled.
func Download(parent context.Context, opts Options) (types.RunSummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := client.New(opts.Runtime.GetMaxConnectionsPerHost())
	resolver := manifest.New(httpClient, opts.Endpoint, opts.Runtime.GetHFToken(), opts.Runtime.GetUserAgent())

	xlog.Debugf("engine: run %s starting for %s", runID, opts.RepoID)
	entries, err := resolver.GetRepoInfo(ctx, opts.RepoID)
	if err != nil {
		return types.RunSummary{RunID: runID}, err
	}
	xlog.Debugf("engine: run %s manifest resolved %d entries for %s", runID, len(entries), opts.RepoID)

	fset := filter.Set{Include: opts.Include, Exclude: opts.Exclude}
	kept := make([]types.FileEntry, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if fset.Keep(e.Path) {
			kept = append(kept, e)
		} else {
			skipped++
		}
	}

	downloadPlan, err := plan.Build(opts.RepoID, kept, opts.LocalDir, opts.ParallelDownloadThreshold)
	if err != nil {
		return types.RunSummary{RunID: runID}, err
	}
	alreadyComplete := len(kept) - len(downloadPlan.Files)
	xlog.Debugf("engine: run %s plan has %d files to fetch, %d already complete, %d filtered out",
		runID, len(downloadPlan.Files), alreadyComplete, skipped)

	jobs := make([]scheduler.FileJob, len(downloadPlan.Files))
	sizeByPath := make(map[string]int64, len(downloadPlan.Files))
	for i, pf := range downloadPlan.Files {
		jobs[i] = scheduler.FileJob{Plan: pf, URL: resolver.FileURL(opts.RepoID, pf.Path)}
		sizeByPath[pf.LocalPath] = pf.Size
	}

	sched := scheduler.New(opts.Runtime, httpClient, opts.ConcurrentDownloads, opts.Verbose)
	results := sched.Run(ctx, jobs, func(path string) *types.ProgressState {
		if opts.OnFileStart == nil {
			return nil
		}
		return opts.OnFileStart(path, sizeByPath[path])
	})

	summary := types.RunSummary{
		RunID:        runID,
		RepoID:       opts.RepoID,
		FilesTotal:   len(kept),
		FilesSkipped: alreadyComplete + skipped,
		BytesTotal:   downloadPlan.TotalBytes,
		Elapsed:      time.Since(start),
	}
	for _, r := range results {
		if r.Err != nil && ctx.Err() != nil &&
			(errors.Is(r.Err, errkind.Sentinel(errkind.Cancelled)) || errors.Is(r.Err, context.Canceled)) {
			continue
		}
		if r.Err != nil {
			summary.Failed = append(summary.Failed, r)
			continue
		}
		summary.FilesDownloaded++
	}

	if ctx.Err() != nil && len(summary.Failed) == 0 {
		return summary, errkind.Sentinel(errkind.Cancelled)
	}
	if summary.HasFailures() {
		return summary, fmt.Errorf("%d of %d files failed", len(summary.Failed), summary.FilesTotal)
	}
	return summary, nil
}
