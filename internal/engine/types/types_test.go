package types

import (
	"errors"
	"testing"
	"time"
)

func TestRuntimeConfig_Getters(t *testing.T) {
	t.Run("nil config returns defaults", func(t *testing.T) {
		var r *RuntimeConfig = nil

		if got := r.GetUserAgent(); got == "" {
			t.Error("GetUserAgent should return default, got empty")
		}
		if got := r.GetMaxConnectionsPerHost(); got != PerHostMax {
			t.Errorf("GetMaxConnectionsPerHost = %d, want %d", got, PerHostMax)
		}
		if got := r.GetMinChunkSize(); got != MinChunk {
			t.Errorf("GetMinChunkSize = %d, want %d", got, MinChunk)
		}
		if got := r.GetMaxChunkSize(); got != MaxChunk {
			t.Errorf("GetMaxChunkSize = %d, want %d", got, MaxChunk)
		}
		if got := r.GetTargetChunkSize(); got != TargetChunk {
			t.Errorf("GetTargetChunkSize = %d, want %d", got, TargetChunk)
		}
		if got := r.GetWorkerBufferSize(); got != WorkerBuffer {
			t.Errorf("GetWorkerBufferSize = %d, want %d", got, WorkerBuffer)
		}
		if got := r.GetMaxTaskRetries(); got != MaxTaskRetries {
			t.Errorf("GetMaxTaskRetries = %d, want %d", got, MaxTaskRetries)
		}
		if got := r.GetSlowWorkerThreshold(); got != SlowWorkerThreshold {
			t.Errorf("GetSlowWorkerThreshold = %f, want %f", got, SlowWorkerThreshold)
		}
		if got := r.GetSlowWorkerGracePeriod(); got != SlowWorkerGrace {
			t.Errorf("GetSlowWorkerGracePeriod = %v, want %v", got, SlowWorkerGrace)
		}
		if got := r.GetStallTimeout(); got != StallTimeout {
			t.Errorf("GetStallTimeout = %v, want %v", got, StallTimeout)
		}
		if got := r.GetSpeedEmaAlpha(); got != SpeedEMAAlpha {
			t.Errorf("GetSpeedEmaAlpha = %f, want %f", got, SpeedEMAAlpha)
		}
	})

	t.Run("zero values return defaults", func(t *testing.T) {
		r := &RuntimeConfig{} // All zero values

		if got := r.GetMaxConnectionsPerHost(); got != PerHostMax {
			t.Errorf("GetMaxConnectionsPerHost = %d, want %d", got, PerHostMax)
		}
		if got := r.GetMinChunkSize(); got != MinChunk {
			t.Errorf("GetMinChunkSize = %d, want %d", got, MinChunk)
		}
		if got := r.GetMaxChunkSize(); got != MaxChunk {
			t.Errorf("GetMaxChunkSize = %d, want %d", got, MaxChunk)
		}
		if got := r.GetWorkerBufferSize(); got != WorkerBuffer {
			t.Errorf("GetWorkerBufferSize = %d, want %d", got, WorkerBuffer)
		}
	})

	t.Run("custom values are returned", func(t *testing.T) {
		r := &RuntimeConfig{
			MaxConnectionsPerHost: 128,
			UserAgent:             "CustomAgent/1.0",
			MinChunkSize:          4 * MB,
			MaxChunkSize:          32 * MB,
			TargetChunkSize:       16 * MB,
			WorkerBufferSize:      1 * MB,
			MaxTaskRetries:        5,
			SlowWorkerThreshold:   0.75,
			SlowWorkerGracePeriod: 10 * time.Second,
			StallTimeout:          15 * time.Second,
			SpeedEmaAlpha:         0.5,
		}

		if got := r.GetMaxConnectionsPerHost(); got != 128 {
			t.Errorf("GetMaxConnectionsPerHost = %d, want 128", got)
		}
		if got := r.GetUserAgent(); got != "CustomAgent/1.0" {
			t.Errorf("GetUserAgent = %s, want CustomAgent/1.0", got)
		}
		if got := r.GetMinChunkSize(); got != 4*MB {
			t.Errorf("GetMinChunkSize = %d, want %d", got, 4*MB)
		}
		if got := r.GetMaxChunkSize(); got != 32*MB {
			t.Errorf("GetMaxChunkSize = %d, want %d", got, 32*MB)
		}
		if got := r.GetTargetChunkSize(); got != 16*MB {
			t.Errorf("GetTargetChunkSize = %d, want %d", got, 16*MB)
		}
		if got := r.GetWorkerBufferSize(); got != 1*MB {
			t.Errorf("GetWorkerBufferSize = %d, want %d", got, 1*MB)
		}
		if got := r.GetMaxTaskRetries(); got != 5 {
			t.Errorf("GetMaxTaskRetries = %d, want 5", got)
		}
		if got := r.GetSlowWorkerThreshold(); got != 0.75 {
			t.Errorf("GetSlowWorkerThreshold = %f, want 0.75", got)
		}
		if got := r.GetSlowWorkerGracePeriod(); got != 10*time.Second {
			t.Errorf("GetSlowWorkerGracePeriod = %v, want %v", got, 10*time.Second)
		}
		if got := r.GetStallTimeout(); got != 15*time.Second {
			t.Errorf("GetStallTimeout = %v, want %v", got, 15*time.Second)
		}
		if got := r.GetSpeedEmaAlpha(); got != 0.5 {
			t.Errorf("GetSpeedEmaAlpha = %f, want 0.5", got)
		}
	})
}

func TestSizeConstants(t *testing.T) {
	// Verify size constant relationships
	if KB != 1024 {
		t.Errorf("KB = %d, want 1024", KB)
	}
	if MB != 1024*KB {
		t.Errorf("MB = %d, want %d", MB, 1024*KB)
	}
	if GB != 1024*MB {
		t.Errorf("GB = %d, want %d", GB, 1024*MB)
	}

	// Verify chunk size constraints
	if MinChunk > MaxChunk {
		t.Errorf("MinChunk (%d) > MaxChunk (%d)", MinChunk, MaxChunk)
	}
	if TargetChunk < MinChunk || TargetChunk > MaxChunk {
		t.Errorf("TargetChunk (%d) not in range [%d, %d]", TargetChunk, MinChunk, MaxChunk)
	}

	// Verify alignment
	if AlignSize <= 0 {
		t.Errorf("AlignSize = %d, should be positive", AlignSize)
	}
	if AlignSize&(AlignSize-1) != 0 {
		t.Error("AlignSize should be a power of 2")
	}
}

func TestTimeoutConstants(t *testing.T) {
	// Verify timeouts are reasonable (not zero, not too long)
	timeouts := map[string]time.Duration{
		"DefaultIdleConnTimeout":       DefaultIdleConnTimeout,
		"DefaultTLSHandshakeTimeout":   DefaultTLSHandshakeTimeout,
		"DefaultResponseHeaderTimeout": DefaultResponseHeaderTimeout,
		"DefaultExpectContinueTimeout": DefaultExpectContinueTimeout,
		"DialTimeout":                  DialTimeout,
		"KeepAliveDuration":            KeepAliveDuration,
		"ProbeTimeout":                 ProbeTimeout,
		"HealthCheckInterval":          HealthCheckInterval,
		"SlowWorkerGrace":              SlowWorkerGrace,
		"StallTimeout":                 StallTimeout,
		"RetryBaseDelay":               RetryBaseDelay,
	}

	for name, timeout := range timeouts {
		if timeout <= 0 {
			t.Errorf("%s = %v, should be positive", name, timeout)
		}
		if timeout > 5*time.Minute {
			t.Errorf("%s = %v, seems too long", name, timeout)
		}
	}
}

func TestConnectionLimits(t *testing.T) {
	if PerHostMax <= 0 {
		t.Error("PerHostMax should be positive")
	}
	if PerHostMax > 256 {
		t.Error("PerHostMax seems too high")
	}
	// Check DefaultMaxIdleConns if available (int type)
	if DefaultMaxIdleConns <= 0 {
		t.Error("DefaultMaxIdleConns should be positive")
	}
}

func TestChannelBufferSizes(t *testing.T) {
	if ProgressChannelBuffer <= 0 {
		t.Error("ProgressChannelBuffer should be positive")
	}
}

func TestFileEntry_SizeKnown(t *testing.T) {
	if (FileEntry{Size: -1}).SizeKnown() {
		t.Error("size -1 should report unknown")
	}
	if !(FileEntry{Size: 0}).SizeKnown() {
		t.Error("size 0 should report known (an empty file)")
	}
	if !(FileEntry{Size: 42}).SizeKnown() {
		t.Error("positive size should report known")
	}
}

func TestRunSummary_HasFailures(t *testing.T) {
	if (RunSummary{}).HasFailures() {
		t.Error("empty summary should report no failures")
	}
	withFailure := RunSummary{Failed: []FileResult{{Path: "a.bin", Err: errTest}}}
	if !withFailure.HasFailures() {
		t.Error("summary with a failed file should report failures")
	}
}

func TestProgressState_GetProgress(t *testing.T) {
	state := NewProgressState("file.bin", 1000)
	state.Downloaded.Add(250)
	state.ActiveWorkers.Add(2)

	downloaded, total, _, connections, sessionStart := state.GetProgress()
	if downloaded != 250 {
		t.Errorf("downloaded = %d, want 250", downloaded)
	}
	if total != 1000 {
		t.Errorf("total = %d, want 1000", total)
	}
	if connections != 2 {
		t.Errorf("connections = %d, want 2", connections)
	}
	if sessionStart != 0 {
		t.Errorf("sessionStart = %d, want 0 before SetTotalSize", sessionStart)
	}
}

func TestProgressState_SetTotalSizeResetsSession(t *testing.T) {
	state := NewProgressState("file.bin", 1000)
	state.Downloaded.Add(400)

	state.SetTotalSize(2000)

	_, total, _, _, sessionStart := state.GetProgress()
	if total != 2000 {
		t.Errorf("total = %d, want 2000", total)
	}
	if sessionStart != 400 {
		t.Errorf("sessionStart = %d, want 400 (bytes already downloaded before resume)", sessionStart)
	}
}

func TestProgressState_SetGetError(t *testing.T) {
	state := NewProgressState("file.bin", 1000)
	if got := state.GetError(); got != nil {
		t.Errorf("GetError on fresh state = %v, want nil", got)
	}
	state.SetError(errTest)
	if got := state.GetError(); got != errTest {
		t.Errorf("GetError = %v, want %v", got, errTest)
	}
}

var errTest = errors.New("boom")
