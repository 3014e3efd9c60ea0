// Package single implements the small-file downloader: one streaming GET
// with no ranges and no chunk splitting, for files at or below the
// parallel-download threshold. Grounded on the idle-timeout-reader and
// io.Copy-to-file shape of a typical single-threaded HTTP downloader,
// adapted to write through the engine's atomic progress counter instead of
// a channel.
package single

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"

	"github.com/hfdownloader/hfd/internal/engine/client"
	"github.com/hfdownloader/hfd/internal/engine/errkind"
	"github.com/hfdownloader/hfd/internal/engine/types"
	"github.com/hfdownloader/hfd/internal/xlog"
)

// Downloader performs whole-file GETs for files that don't warrant chunking.
type Downloader struct {
	State      *types.ProgressState
	Runtime    *types.RuntimeConfig
	HTTPClient *http.Client
}

// New constructs a small-file downloader that issues its request through
// httpClient (shared across the whole run rather than built per file).
func New(progState *types.ProgressState, runtime *types.RuntimeConfig, httpClient *http.Client) *Downloader {
	return &Downloader{State: progState, Runtime: runtime, HTTPClient: httpClient}
}

// Download streams url to localPath in one request. If knownSize is > 0 the
// written byte count is checked against it on completion; a mismatch is
// reported as errkind.SizeMismatch. A cancelled context leaves whatever
// bytes were already written on disk for a later re-download attempt.
func (d *Downloader) Download(ctx context.Context, url, localPath string, knownSize int64, verbose bool) error {
	xlog.Debugf("single.Download: %s -> %s (known size: %d)", url, localPath, knownSize)

	if info, err := os.Stat(localPath); err == nil && knownSize > 0 && info.Size() == knownSize {
		if d.State != nil {
			d.State.Downloaded.Add(knownSize)
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, localPath, err)
	}
	client.SetCommonHeaders(req, d.Runtime.GetUserAgent(), d.Runtime.GetHFToken())

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return errkind.New(errkind.TransientNetwork, localPath, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errkind.New(errkind.AuthRequired, localPath, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// expected path
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return errkind.New(errkind.TransientNetwork, localPath, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return errkind.New(errkind.IntegrityMismatch, localPath, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	out, err := os.Create(localPath)
	if err != nil {
		return errkind.New(errkind.LocalIO, localPath, err)
	}
	defer out.Close()

	body := d.sniffForDiagnostics(localPath, resp)

	written, err := d.copyWithStallDetection(ctx, out, body)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("%s: %d bytes (single-threaded)\n", localPath, written)
	}

	if knownSize > 0 && written != knownSize {
		return errkind.New(errkind.SizeMismatch, localPath, fmt.Errorf("wrote %d bytes, want %d", written, knownSize))
	}
	return nil
}

// sniffForDiagnostics peeks the first 512 bytes of the response to log the
// magic-byte file type and any Content-Disposition filename, then
// reconstructs a reader over the full body so no bytes are lost — a
// peek-then-io.MultiReader shape for header sniffing without consuming the
// body. Hugging Face occasionally serves an HTML error page with a 200
// status for a gated or missing repo file; this gives --verbose runs a way
// to see that before the size check fires.
func (d *Downloader) sniffForDiagnostics(localPath string, resp *http.Response) io.Reader {
	header := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, header)
	header = header[:n]

	if kind, _ := filetype.Match(header); kind != filetype.Unknown {
		xlog.Debugf("single: %s sniffed as %s (%s)", localPath, kind.Extension, kind.MIME)
	} else {
		xlog.Debugf("single: %s sniffed as %s", localPath, http.DetectContentType(header))
	}
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		xlog.Debugf("single: %s server-suggested filename %q", localPath, name)
	}

	return io.MultiReader(bytes.NewReader(header), resp.Body)
}

// copyWithStallDetection mirrors downloadChunk's read-vs-stall-timeout race
// (internal/engine/concurrent/worker.go), generalized to an unranged body of
// unknown total length. It updates d.State.Downloaded as bytes land.
func (d *Downloader) copyWithStallDetection(ctx context.Context, out *os.File, body io.Reader) (int64, error) {
	buf := make([]byte, d.Runtime.GetWorkerBufferSize())
	stallTimeout := d.Runtime.GetStallTimeout()
	var written int64

	type readResult struct {
		n   int
		err error
	}

	for {
		resultCh := make(chan readResult, 1)
		go func() {
			n, err := body.Read(buf)
			resultCh <- readResult{n, err}
		}()

		select {
		case <-ctx.Done():
			return written, errkind.Sentinel(errkind.Cancelled)
		case <-time.After(stallTimeout):
			return written, errkind.New(errkind.Stall, "", fmt.Errorf("no bytes for %s", stallTimeout))
		case res := <-resultCh:
			if res.n > 0 {
				if _, werr := out.Write(buf[:res.n]); werr != nil {
					return written, errkind.New(errkind.LocalIO, "", fmt.Errorf("write: %w", werr))
				}
				written += int64(res.n)
				if d.State != nil {
					d.State.Downloaded.Add(int64(res.n))
				}
			}
			if res.err == io.EOF {
				return written, nil
			}
			if res.err != nil {
				return written, errkind.New(errkind.TransientNetwork, "", res.err)
			}
		}
	}
}
