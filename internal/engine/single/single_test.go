package single

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/types"
)

func TestDownload_WritesFullBodyAndMatchesSize(t *testing.T) {
	body := "hello, this is the file contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.txt")
	state := types.NewProgressState(dst, int64(len(body)))

	d := New(state, &types.RuntimeConfig{}, http.DefaultClient)
	if err := d.Download(context.Background(), srv.URL, dst, int64(len(body)), false); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil || string(got) != body {
		t.Errorf("file contents = %q, err=%v", got, err)
	}
	if state.Downloaded.Load() != int64(len(body)) {
		t.Errorf("Downloaded = %d, want %d", state.Downloaded.Load(), len(body))
	}
}

func TestDownload_SkipsWhenLocalFileAlreadyMatchesSize(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "existing.bin")
	if err := os.WriteFile(dst, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		called = true
	}))
	defer srv.Close()

	state := types.NewProgressState(dst, 5)
	d := New(state, &types.RuntimeConfig{}, http.DefaultClient)
	if err := d.Download(context.Background(), srv.URL, dst, 5, false); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if called {
		t.Error("Download should skip the HTTP request when the local file already matches the known size")
	}
	if state.Downloaded.Load() != 5 {
		t.Errorf("Downloaded = %d, want 5 credited for the pre-existing file", state.Downloaded.Load())
	}
}

func TestDownload_SizeMismatchIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out.bin")
	d := New(nil, &types.RuntimeConfig{}, http.DefaultClient)
	err := d.Download(context.Background(), srv.URL, dst, 999, false)

	var dlErr *errkind.DownloadError
	if err == nil || !asErr(err, &dlErr) || dlErr.Kind != errkind.SizeMismatch {
		t.Errorf("expected errkind.SizeMismatch, got %v", err)
	}
}

func TestDownload_UnauthorizedIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out.bin")
	d := New(nil, &types.RuntimeConfig{}, http.DefaultClient)
	err := d.Download(context.Background(), srv.URL, dst, 0, false)

	var dlErr *errkind.DownloadError
	if err == nil || !asErr(err, &dlErr) || dlErr.Kind != errkind.AuthRequired {
		t.Errorf("expected errkind.AuthRequired, got %v", err)
	}
}

func TestDownload_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out.bin")
	d := New(nil, &types.RuntimeConfig{}, http.DefaultClient)
	err := d.Download(context.Background(), srv.URL, dst, 0, false)

	var dlErr *errkind.DownloadError
	if err == nil || !asErr(err, &dlErr) || dlErr.Kind != errkind.TransientNetwork {
		t.Errorf("expected errkind.TransientNetwork, got %v", err)
	}
}

func asErr(err error, target **errkind.DownloadError) bool {
	de, ok := err.(*errkind.DownloadError)
	if !ok {
		return false
	}
	*target = de
	return true
}
