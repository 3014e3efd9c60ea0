package types

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProgressState tracks one file's download progress for the reporter.
// Carries no pause/resume fields: a per-download pause button belongs to
// a daemon with a UI to host it, which this single-shot CLI has no use
// for — cancellation here is one process-wide signal, not per-file.
type ProgressState struct {
	ID            string
	Downloaded    atomic.Int64
	TotalSize     int64
	StartTime     time.Time
	ActiveWorkers atomic.Int32
	Done          atomic.Bool
	Error         atomic.Pointer[error]

	SessionStartBytes int64
	mu                sync.Mutex // protects TotalSize, StartTime, SessionStartBytes
}

func NewProgressState(id string, totalSize int64) *ProgressState {
	return &ProgressState{
		ID:        id,
		TotalSize: totalSize,
		StartTime: time.Now(),
	}
}

func (ps *ProgressState) SetTotalSize(size int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.TotalSize = size
	ps.SessionStartBytes = ps.Downloaded.Load()
	ps.StartTime = time.Now()
}

func (ps *ProgressState) SetError(err error) {
	ps.Error.Store(&err)
}

func (ps *ProgressState) GetError() error {
	if e := ps.Error.Load(); e != nil {
		return *e
	}
	return nil
}

func (ps *ProgressState) GetProgress() (downloaded int64, total int64, elapsed time.Duration, connections int32, sessionStartBytes int64) {
	downloaded = ps.Downloaded.Load()
	connections = ps.ActiveWorkers.Load()

	ps.mu.Lock()
	total = ps.TotalSize
	elapsed = time.Since(ps.StartTime)
	sessionStartBytes = ps.SessionStartBytes
	ps.mu.Unlock()
	return
}
