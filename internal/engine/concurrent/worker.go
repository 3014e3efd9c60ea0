package concurrent

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hfdownloader/hfd/internal/engine/client"
	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/types"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// worker pulls tasks off queue until it is closed, retrying each chunk per
// the retry & backoff policy below. onChunkDone is invoked once per chunk
// that finishes successfully (used by Download to drive the completion
// gate).
func (d *ChunkedDownloader) worker(ctx context.Context, id int, url string, file *os.File, queue *TaskQueue, onChunkDone func(), verbose bool, httpClient *http.Client) error {
	buf := make([]byte, d.Runtime.GetWorkerBufferSize())

	xlog.Debugf("worker %d started", id)
	defer xlog.Debugf("worker %d finished", id)

	for {
		task, ok := queue.Pop()
		if !ok {
			return nil
		}

		if d.State != nil {
			d.State.ActiveWorkers.Add(1)
		}

		kind, lastErr := d.runChunkWithRetries(ctx, id, url, file, queue, &task, buf, verbose, httpClient)

		if d.State != nil {
			d.State.ActiveWorkers.Add(-1)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if lastErr == nil {
			onChunkDone()
			continue
		}

		return errkind.New(kind, "", fmt.Errorf("chunk offset=%d length=%d: %w", task.Offset, task.Length, lastErr))
	}
}

// runChunkWithRetries runs one chunk's per-attempt protocol and retry
// policy. It mutates task in place across attempts so a retry only
// re-fetches whatever bytes are still missing.
func (d *ChunkedDownloader) runChunkWithRetries(ctx context.Context, id int, url string, file *os.File, queue *TaskQueue, task *types.Task, buf []byte, verbose bool, httpClient *http.Client) (errkind.Kind, error) {
	maxRetries := d.Runtime.GetMaxTaskRetries()

	var lastErr error
	var lastKind errkind.Kind
	localIORetries := 0

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}

		if ctx.Err() != nil {
			return errkind.Cancelled, ctx.Err()
		}

		taskCtx, taskCancel := context.WithCancel(ctx)
		now := time.Now()
		active := &ActiveTask{
			Task:          *task,
			CurrentOffset: task.Offset,
			StopAt:        task.Offset + task.Length,
			LastActivity:  now.UnixNano(),
			StartTime:     now,
			Cancel:        taskCancel,
			WindowStart:   now,
		}
		d.activeMu.Lock()
		d.activeTasks[id] = active
		d.activeMu.Unlock()

		kind, err := d.downloadChunk(taskCtx, url, file, active, buf, verbose, httpClient)
		wasHealthCancelled := taskCtx.Err() != nil && ctx.Err() == nil
		taskCancel()

		d.activeMu.Lock()
		delete(d.activeTasks, id)
		d.activeMu.Unlock()

		if ctx.Err() != nil {
			return errkind.Cancelled, ctx.Err()
		}

		if err == nil {
			return 0, nil
		}

		if wasHealthCancelled {
			// The health monitor cancelled this attempt for being too
			// slow, not because of a real failure; requeue whatever is
			// left and move on without counting it as a retry.
			if remaining := active.RemainingTask(); remaining != nil && remaining.Length > 0 {
				queue.Push(*remaining)
			}
			return 0, nil
		}

		lastErr = err
		lastKind = kind

		if !kind.Retryable() {
			return kind, lastErr
		}

		if kind == errkind.LocalIO {
			localIORetries++
			if localIORetries > errkind.MaxLocalIORetries {
				return kind, lastErr
			}
		}

		// Resume-on-retry: only re-fetch what is still missing.
		current := atomic.LoadInt64(&active.CurrentOffset)
		if current > task.Offset {
			task.Length = task.Offset + task.Length - current
			task.Offset = current
		}
	}

	return lastKind, lastErr
}

// backoff implements the retry delay formula:
// wait_ms = min(1000 + attempt² + rand[0,500], 30000)
func backoff(attempt int) time.Duration {
	waitMs := 1000 + attempt*attempt + rand.Intn(501)
	if waitMs > 30000 {
		waitMs = 30000
	}
	return time.Duration(waitMs) * time.Millisecond
}

// downloadChunk issues the ranged GET and streams it to disk.
func (d *ChunkedDownloader) downloadChunk(ctx context.Context, url string, file *os.File, active *ActiveTask, buf []byte, verbose bool, httpClient *http.Client) (errkind.Kind, error) {
	task := active.Task

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errkind.TransientNetwork, err
	}
	client.SetCommonHeaders(req, d.Runtime.GetUserAgent(), d.Runtime.GetHFToken())
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", task.Offset, task.Offset+task.Length-1))

	resp, err := httpClient.Do(req)
	if err != nil {
		return errkind.TransientNetwork, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errkind.AuthRequired, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusOK:
		// Server ignored Range entirely: fatal for this file.
		return errkind.RangeUnsupported, fmt.Errorf("server returned 200 instead of 206 for a range request")
	case resp.StatusCode == http.StatusPartialContent:
		// expected path
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return errkind.TransientNetwork, fmt.Errorf("status 416")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return errkind.TransientNetwork, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errkind.TransientNetwork, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return errkind.IntegrityMismatch, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	stallTimeout := d.Runtime.GetStallTimeout()
	offset := task.Offset

	for {
		stopAt := atomic.LoadInt64(&active.StopAt)
		if offset >= stopAt {
			return 0, nil // work-stolen tail already handed off
		}

		remaining := stopAt - offset
		readSize := int64(len(buf))
		if readSize > remaining {
			readSize = remaining
		}

		type readResult struct {
			n   int
			err error
		}
		resultCh := make(chan readResult, 1)
		go func() {
			n, err := io.ReadFull(resp.Body, buf[:readSize])
			resultCh <- readResult{n, err}
		}()

		select {
		case <-ctx.Done():
			return errkind.Cancelled, ctx.Err()
		case <-time.After(stallTimeout):
			return errkind.Stall, fmt.Errorf("no bytes for %s", stallTimeout)
		case res := <-resultCh:
			if res.n > 0 {
				currentStopAt := atomic.LoadInt64(&active.StopAt)
				n := res.n
				if offset+int64(n) > currentStopAt {
					n = int(currentStopAt - offset)
					if n <= 0 {
						return 0, nil
					}
				}
				if _, werr := file.WriteAt(buf[:n], offset); werr != nil {
					return errkind.LocalIO, fmt.Errorf("write: %w", werr)
				}

				now := time.Now()
				oldOffset := offset
				offset += int64(n)
				atomic.StoreInt64(&active.CurrentOffset, offset)
				atomic.AddInt64(&active.WindowBytes, int64(n))
				atomic.StoreInt64(&active.LastActivity, now.UnixNano())
				updateSpeed(active, d.Runtime, now)

				if d.State != nil {
					effectiveEnd := offset
					if effectiveEnd > currentStopAt {
						effectiveEnd = currentStopAt
					}
					if contributed := effectiveEnd - oldOffset; contributed > 0 {
						d.State.Downloaded.Add(contributed)
					}
				}
			}

			if res.err == io.EOF || res.err == io.ErrUnexpectedEOF {
				if offset >= stopAt {
					return 0, nil
				}
				return errkind.TransientNetwork, fmt.Errorf("truncated body: %w", res.err)
			}
			if res.err != nil {
				return errkind.TransientNetwork, res.err
			}
		}
	}
}

func updateSpeed(active *ActiveTask, runtime *types.RuntimeConfig, now time.Time) {
	windowElapsed := now.Sub(active.WindowStart).Seconds()
	if windowElapsed < 2.0 {
		return
	}
	windowBytes := atomic.SwapInt64(&active.WindowBytes, 0)
	recentSpeed := float64(windowBytes) / windowElapsed

	active.SpeedMu.Lock()
	alpha := runtime.GetSpeedEmaAlpha()
	if active.Speed == 0 {
		active.Speed = recentSpeed
	} else {
		active.Speed = (1-alpha)*active.Speed + alpha*recentSpeed
	}
	active.SpeedMu.Unlock()

	active.WindowStart = now
}

// StealWork tries to split an active task from the busiest worker, handing
// the tail to the queue.
func (d *ChunkedDownloader) StealWork(queue *TaskQueue) bool {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	var bestID = -1
	var maxRemaining int64
	var bestActive *ActiveTask

	for id, active := range d.activeTasks {
		remaining := active.RemainingBytes()
		if remaining > types.MinChunk && remaining > maxRemaining {
			maxRemaining = remaining
			bestID = id
			bestActive = active
		}
	}

	if bestID == -1 {
		return false
	}

	splitSize := alignedSplitSize(maxRemaining)
	if splitSize == 0 {
		return false
	}

	current := atomic.LoadInt64(&bestActive.CurrentOffset)
	newStopAt := current + splitSize
	atomic.StoreInt64(&bestActive.StopAt, newStopAt)

	finalCurrent := atomic.LoadInt64(&bestActive.CurrentOffset)
	stolenStart := newStopAt
	if finalCurrent > newStopAt {
		stolenStart = finalCurrent
	}

	originalEnd := current + maxRemaining
	if stolenStart >= originalEnd {
		return false
	}

	stolen := types.Task{Offset: stolenStart, Length: originalEnd - stolenStart}
	queue.Push(stolen)
	xlog.Debugf("balancer: stole %s from worker %d (range %d-%d)",
		humanize.Bytes(uint64(stolen.Length)), bestID, stolen.Offset, stolen.Offset+stolen.Length)
	return true
}
