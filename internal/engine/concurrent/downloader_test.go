package concurrent

import (
	"os"
	"testing"
	"time"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

func TestGetInitialConnections_TieredBySize(t *testing.T) {
	d := &ChunkedDownloader{Runtime: &types.RuntimeConfig{MaxConnectionsPerHost: 64}}

	cases := []struct {
		size int64
		want int
	}{
		{5 * types.MB, 1},
		{50 * types.MB, 4},
		{500 * types.MB, 6},
		{2 * types.GB, 32},
	}
	for _, tc := range cases {
		if got := d.getInitialConnections(tc.size); got != tc.want {
			t.Errorf("getInitialConnections(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestGetInitialConnections_CappedByRuntimeMax(t *testing.T) {
	d := &ChunkedDownloader{Runtime: &types.RuntimeConfig{MaxConnectionsPerHost: 2}}
	if got := d.getInitialConnections(2 * types.GB); got != 2 {
		t.Errorf("getInitialConnections should cap at the runtime max, got %d", got)
	}
}

func TestCalculateChunkSize_ClampsToWindow(t *testing.T) {
	d := &ChunkedDownloader{Runtime: &types.RuntimeConfig{}}

	if got := d.calculateChunkSize(1000, 1); got != types.MinChunk {
		t.Errorf("tiny file: chunkSize = %d, want MinChunk %d", got, types.MinChunk)
	}

	huge := int64(100) * types.GB
	if got := d.calculateChunkSize(huge, 1); got != types.MaxChunk {
		t.Errorf("huge file single conn: chunkSize = %d, want MaxChunk %d", got, types.MaxChunk)
	}
}

func TestCalculateChunkSize_AlignedTo4KB(t *testing.T) {
	d := &ChunkedDownloader{Runtime: &types.RuntimeConfig{}}
	got := d.calculateChunkSize(37*types.MB, 4)
	if got%types.AlignSize != 0 {
		t.Errorf("chunkSize %d is not aligned to %d", got, types.AlignSize)
	}
}

func TestCreateChunks_CoversFileExactly(t *testing.T) {
	chunks := createChunks(25, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	want := []types.Task{{Offset: 0, Length: 10}, {Offset: 10, Length: 10}, {Offset: 20, Length: 5}}
	for i, c := range chunks {
		if c != want[i] {
			t.Errorf("chunk[%d] = %+v, want %+v", i, c, want[i])
		}
	}
}

func TestCreateChunks_ZeroChunkSizeReturnsNil(t *testing.T) {
	if got := createChunks(100, 0); got != nil {
		t.Errorf("expected nil for a zero chunk size, got %v", got)
	}
}

func TestProbeCompletion_DetectsFullyWrittenChunks(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "probe")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		t.Fatal(err)
	}

	chunks := []types.Task{{Offset: 0, Length: 10}, {Offset: 10, Length: 10}, {Offset: 20, Length: 10}}
	state := types.NewProgressState("f", 30)

	outstanding := probeCompletion(f, chunks, state)

	if len(outstanding) != 1 || outstanding[0].Offset != 20 {
		t.Errorf("expected only the offset-20 chunk outstanding, got %+v", outstanding)
	}
	if got := state.Downloaded.Load(); got != 20 {
		t.Errorf("Downloaded = %d, want 20 for the two already-complete chunks", got)
	}
}

func TestChunkComplete_ShortReadIsIncomplete(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "short")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(5); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 32*types.KB)
	if chunkComplete(f, types.Task{Offset: 0, Length: 100}, buf) {
		t.Error("a chunk extending past EOF should not be reported complete")
	}
}

func TestBackoff_GrowsWithAttemptAndCapsAt30s(t *testing.T) {
	first := backoff(0)
	if first < 1*time.Second || first > 1500*time.Millisecond {
		t.Errorf("backoff(0) = %v, want within [1000ms, 1500ms]", first)
	}

	late := backoff(1000)
	if late != 30*time.Second {
		t.Errorf("backoff(1000) = %v, want capped at 30s", late)
	}
}

func TestBackoff_Attempt3UpperBound(t *testing.T) {
	// wait_ms = min(1000 + 9 + rand[0,500], 30000)
	d := backoff(3)
	if d < 1009*time.Millisecond || d > 1509*time.Millisecond {
		t.Errorf("backoff(3) = %v, want within [1009ms, 1509ms]", d)
	}
}
