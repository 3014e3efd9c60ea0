package concurrent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/types"
)

// TestRunChunkWithRetries_LocalIORetriesOnceThenFatal exercises a write
// target that always fails: the chunk should be retried exactly once for
// LocalIO before runChunkWithRetries gives up, even though the configured
// task retry budget allows many more attempts.
func TestRunChunkWithRetries_LocalIORetriesOnceThenFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-3/4")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	file, err := os.Create(dir + "/out.bin")
	if err != nil {
		t.Fatal(err)
	}
	file.Close() // closed file: every WriteAt fails with a LocalIO-classified error

	d := &ChunkedDownloader{
		Runtime:     &types.RuntimeConfig{MaxTaskRetries: 5},
		activeTasks: make(map[int]*ActiveTask),
	}
	queue := NewTaskQueue()
	task := types.Task{Offset: 0, Length: 4}
	buf := make([]byte, 64)

	kind, retryErr := d.runChunkWithRetries(context.Background(), 0, srv.URL, file, queue, &task, buf, false, http.DefaultClient)

	if kind != errkind.LocalIO {
		t.Fatalf("kind = %v, want LocalIO", kind)
	}
	if retryErr == nil {
		t.Fatal("expected a non-nil error")
	}
}
