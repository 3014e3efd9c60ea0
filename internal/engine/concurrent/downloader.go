// Package concurrent implements the chunked range downloader: it
// preallocates the target file, partitions it into fixed-size ranges,
// probes existing content for already-complete ranges, and downloads the
// rest in parallel with resume, retry, and backoff.
//
// task.go, task_queue.go, and health.go already implement a generic
// work-stealing queue, active-task bookkeeping, and slow-worker health
// check, and are kept close to their original shape. This file and
// worker.go replace a SQLite-backed pause/resume design with a
// sidecar-free resume probe driven entirely by the bytes already on disk,
// and use the exact `1000 + attempt² + rand[0,500]` (capped 30000ms)
// backoff formula in place of a simpler exponential one.
package concurrent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/types"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// ChunkedDownloader downloads one file over multiple connections with
// byte-range resume.
type ChunkedDownloader struct {
	ID         string
	State      *types.ProgressState
	Runtime    *types.RuntimeConfig
	HTTPClient *http.Client
	Token      string

	activeTasks map[int]*ActiveTask
	activeMu    sync.Mutex
}

// NewChunkedDownloader constructs a downloader for one file, issuing all of
// its chunk requests through httpClient (shared across the whole run so
// its connection pool, not a per-file one, bounds real concurrency).
func NewChunkedDownloader(id string, progState *types.ProgressState, runtime *types.RuntimeConfig, httpClient *http.Client) *ChunkedDownloader {
	return &ChunkedDownloader{
		ID:          id,
		State:       progState,
		Runtime:     runtime,
		HTTPClient:  httpClient,
		activeTasks: make(map[int]*ActiveTask),
	}
}

// getInitialConnections picks a size-tiered connection count, capped by
// the runtime's configured per-host maximum.
func (d *ChunkedDownloader) getInitialConnections(fileSize int64) int {
	maxConns := d.Runtime.GetMaxConnectionsPerHost()

	var recConns int
	switch {
	case fileSize < 10*types.MB:
		recConns = 1
	case fileSize < 100*types.MB:
		recConns = 4
	case fileSize < 1*types.GB:
		recConns = 6
	default:
		recConns = 32
	}

	if recConns > maxConns {
		return maxConns
	}
	return recConns
}

// calculateChunkSize picks a target-chunks sizing, clamped into the
// [1 MiB, 64 MiB] window and aligned to 4KB.
func (d *ChunkedDownloader) calculateChunkSize(fileSize int64, numConns int) int64 {
	targetChunks := int64(numConns * types.TasksPerWorker)
	if targetChunks == 0 {
		targetChunks = 1
	}
	chunkSize := fileSize / targetChunks

	minChunk := d.Runtime.GetMinChunkSize()
	maxChunk := d.Runtime.GetMaxChunkSize()
	targetChunk := d.Runtime.GetTargetChunkSize()

	if chunkSize == 0 {
		chunkSize = targetChunk
	}
	if chunkSize < minChunk {
		chunkSize = minChunk
	}
	if chunkSize > maxChunk {
		chunkSize = maxChunk
	}

	chunkSize = (chunkSize / types.AlignSize) * types.AlignSize
	if chunkSize == 0 {
		chunkSize = types.AlignSize
	}
	return chunkSize
}

func createChunks(fileSize, chunkSize int64) []types.Task {
	if chunkSize <= 0 {
		return nil
	}
	var tasks []types.Task
	for offset := int64(0); offset < fileSize; offset += chunkSize {
		length := chunkSize
		if offset+length > fileSize {
			length = fileSize - offset
		}
		tasks = append(tasks, types.Task{Offset: offset, Length: length})
	}
	return tasks
}

// probeCompletion is the sidecar-free resume probe: for each candidate
// chunk, read its full length at its offset; a full-length read
// marks the chunk already complete and advances progress by that many
// bytes. Returns the tasks still outstanding.
func probeCompletion(file *os.File, allChunks []types.Task, progress *types.ProgressState) []types.Task {
	outstanding := make([]types.Task, 0, len(allChunks))
	buf := make([]byte, 32*types.KB)

	for _, chunk := range allChunks {
		if chunkComplete(file, chunk, buf) {
			if progress != nil {
				progress.Downloaded.Add(chunk.Length)
			}
			continue
		}
		outstanding = append(outstanding, chunk)
	}
	return outstanding
}

// chunkComplete reads the chunk's declared range and reports whether a
// full-length read was returned. This cannot tell a genuinely-written
// chunk of zero bytes apart from an unfilled sparse hole — accepted
// deliberately in exchange for sidecar-free resume.
func chunkComplete(file *os.File, chunk types.Task, buf []byte) bool {
	remaining := chunk.Length
	offset := chunk.Offset
	for remaining > 0 {
		readLen := int64(len(buf))
		if readLen > remaining {
			readLen = remaining
		}
		n, err := file.ReadAt(buf[:readLen], offset)
		if int64(n) != readLen {
			return false
		}
		if err != nil && err.Error() != "EOF" {
			return false
		}
		offset += readLen
		remaining -= readLen
	}
	return true
}

// Download fetches one file via ranged, concurrent chunk requests,
// preallocating the target file and resuming any outstanding chunks.
func (d *ChunkedDownloader) Download(ctx context.Context, url, localPath string, totalSize int64, verbose bool) error {
	xlog.Debugf("ChunkedDownloader.Download: %s -> %s (size: %d)", url, localPath, totalSize)

	if totalSize <= 0 {
		return errkind.New(errkind.ManifestShape, localPath, fmt.Errorf("total_size must be > 0"))
	}

	// Preparation: validate existing content, open/preallocate the file.
	if info, err := os.Stat(localPath); err == nil {
		if info.Size() > totalSize {
			if err := os.Remove(localPath); err != nil {
				return errkind.New(errkind.LocalIO, localPath, fmt.Errorf("removing corrupt file: %w", err))
			}
		} else if info.Size() == totalSize {
			if d.State != nil {
				d.State.Downloaded.Add(totalSize)
			}
			return nil
		}
	}

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errkind.New(errkind.LocalIO, localPath, fmt.Errorf("opening file: %w", err))
	}
	defer file.Close()

	if info, statErr := file.Stat(); statErr == nil && info.Size() != totalSize {
		if err := file.Truncate(totalSize); err != nil {
			return errkind.New(errkind.LocalIO, localPath, fmt.Errorf("preallocating file: %w", err))
		}
	}

	numConns := d.getInitialConnections(totalSize)
	chunkSize := d.calculateChunkSize(totalSize, numConns)
	allChunks := createChunks(totalSize, chunkSize)

	outstanding := probeCompletion(file, allChunks, d.State)
	if len(outstanding) == 0 {
		if err := file.Sync(); err != nil {
			return errkind.New(errkind.LocalIO, localPath, fmt.Errorf("syncing file: %w", err))
		}
		return nil
	}

	if verbose {
		fmt.Printf("%s: %d bytes, %d connections, %d-byte chunks (%d outstanding of %d)\n",
			localPath, totalSize, numConns, chunkSize, len(outstanding), len(allChunks))
	}

	queue := NewTaskQueue()
	queue.PushMultiple(outstanding)

	downloadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var completedMu sync.Mutex
	completed := len(allChunks) - len(outstanding)
	total := len(allChunks)

	balancerCtx, cancelBalancer := context.WithCancel(downloadCtx)
	defer cancelBalancer()

	go d.runBalancer(balancerCtx, queue)
	go d.runHealthMonitor(balancerCtx)

	var wg sync.WaitGroup
	workerErrs := make(chan error, numConns)

	for i := 0; i < numConns; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := d.worker(downloadCtx, id, url, file, queue, func() {
				completedMu.Lock()
				completed++
				done := completed >= total
				completedMu.Unlock()
				if done {
					cancelBalancer()
					queue.Close()
				}
			}, verbose, d.HTTPClient)
			if err != nil && err != context.Canceled {
				workerErrs <- err
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(workerErrs)
	}()

	var firstErr error
	for err := range workerErrs {
		if firstErr == nil {
			firstErr = err
		}
	}
	queue.Close()

	if ctx.Err() != nil {
		// Cooperative cancellation: partial files and completed chunks
		// stay on disk for a later resume.
		return errkind.Sentinel(errkind.Cancelled)
	}
	if firstErr != nil {
		return firstErr
	}

	if err := file.Sync(); err != nil {
		return errkind.New(errkind.LocalIO, localPath, fmt.Errorf("final sync: %w", err))
	}

	// Completion gate: every chunk must be accounted for and the file's
	// final size must match.
	info, err := file.Stat()
	if err != nil {
		return errkind.New(errkind.LocalIO, localPath, err)
	}
	completedMu.Lock()
	completeCount := completed
	completedMu.Unlock()
	if info.Size() != totalSize || completeCount != total {
		return errkind.New(errkind.IntegrityMismatch, localPath,
			fmt.Errorf("length=%d want=%d completed=%d/%d", info.Size(), totalSize, completeCount, total))
	}

	return nil
}

func (d *ChunkedDownloader) runBalancer(ctx context.Context, queue *TaskQueue) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	maxSplits := 50
	splitCount := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if queue.IdleWorkers() > 0 && splitCount < maxSplits {
				if queue.SplitLargestIfNeeded() {
					splitCount++
				} else if queue.Len() == 0 {
					if d.StealWork(queue) {
						splitCount++
					}
				}
			}
		}
	}
}

func (d *ChunkedDownloader) runHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(types.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkWorkerHealth()
		}
	}
}
