// Package scheduler runs a DownloadPlan's files through a bounded pool of
// workers, dispatching each file to the chunked or single-file downloader
// per its planned strategy. Grounded on a task-channel-plus-goroutine-pool
// worker pool shape, with pause/resume/persistence (SQLite-backed,
// daemon-oriented) dropped: a single-shot CLI run has nothing to pause
// into, and sidecar resume state is out of scope entirely.
package scheduler

import (
	"context"
	"net/http"
	"sync"

	"github.com/hfdownloader/hfd/internal/engine/concurrent"
	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/single"
	"github.com/hfdownloader/hfd/internal/engine/types"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// FileJob is one planned file paired with its resolved download URL.
type FileJob struct {
	Plan types.PlannedFile
	URL  string
}

// Scheduler runs a bounded number of file downloads concurrently, all of
// them sharing one HTTPClient so the run's total connection count stays
// bounded by that client's own pool rather than by one pool per file.
type Scheduler struct {
	Runtime        *types.RuntimeConfig
	HTTPClient     *http.Client
	Concurrency    int
	Verbose        bool
	OnFileProgress func(path string) *types.ProgressState
}

// New constructs a scheduler bounded to concurrency simultaneous files,
// dispatching every file's requests through httpClient.
func New(runtime *types.RuntimeConfig, httpClient *http.Client, concurrency int, verbose bool) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{Runtime: runtime, HTTPClient: httpClient, Concurrency: concurrency, Verbose: verbose}
}

// Run dispatches every job in jobs, at most s.Concurrency at a time, and
// returns one types.FileResult per job in the order the jobs were given.
// It stops handing out new jobs once ctx is cancelled (those jobs report
// errkind.Cancelled without starting); in-flight jobs see the same ctx and
// stop at their next read, leaving the bytes already written on disk.
func (s *Scheduler) Run(ctx context.Context, jobs []FileJob, progress func(path string) *types.ProgressState) []types.FileResult {
	results := make([]types.FileResult, len(jobs))
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job FileJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[i] = types.FileResult{Path: job.Plan.Path, Bytes: job.Plan.Size, Err: errkind.Sentinel(errkind.Cancelled)}
				return
			}
			results[i] = s.runOne(ctx, job, progress)
		}(i, job)
	}

	wg.Wait()
	return results
}

func (s *Scheduler) runOne(ctx context.Context, job FileJob, progress func(path string) *types.ProgressState) types.FileResult {
	var state *types.ProgressState
	if progress != nil {
		state = progress(job.Plan.LocalPath)
	}

	xlog.Debugf("scheduler: dispatching %s (strategy=%v)", job.Plan.LocalPath, job.Plan.Strategy)

	var err error
	switch job.Plan.Strategy {
	case types.StrategyChunked:
		d := concurrent.NewChunkedDownloader(job.Plan.Path, state, s.Runtime, s.HTTPClient)
		err = d.Download(ctx, job.URL, job.Plan.LocalPath, job.Plan.Size, s.Verbose)
	default:
		d := single.New(state, s.Runtime, s.HTTPClient)
		err = d.Download(ctx, job.URL, job.Plan.LocalPath, job.Plan.Size, s.Verbose)
	}

	return types.FileResult{
		Path:    job.Plan.Path,
		Bytes:   job.Plan.Size,
		Skipped: false,
		Err:     err,
	}
}
