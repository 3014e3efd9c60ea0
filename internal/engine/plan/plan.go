// Package plan is the file planner: for each kept manifest entry it
// computes a local path, detects already-complete files, and chooses the
// small vs. chunked strategy. Grounded on the directory-layout and
// already-downloaded detection pattern of a dest-path + length-comparison
// check that gates re-download, generalized from a single ad-hoc URL
// download to a full per-entry manifest plan.
package plan

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

// Build plans local paths and strategies over the filtered entry list,
// returning the ordered DownloadPlan (already sorted by path by the
// manifest resolver). parallelThreshold is the size at which a file
// becomes chunked — a file no bigger than the threshold gains nothing
// from chunking.
func Build(repoID string, entries []types.FileEntry, baseDir string, parallelThreshold int64) (types.DownloadPlan, error) {
	repoDir := RepoDir(baseDir, repoID)

	planned := make([]types.PlannedFile, 0, len(entries))
	var total int64

	for _, e := range entries {
		localPath := filepath.Join(repoDir, filepath.FromSlash(e.Path))

		if complete, err := isAlreadyComplete(localPath, e); err != nil {
			return types.DownloadPlan{}, err
		} else if complete {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
			return types.DownloadPlan{}, err
		}

		strategy := types.StrategySmall
		if e.SizeKnown() && e.Size > parallelThreshold {
			strategy = types.StrategyChunked
		}

		planned = append(planned, types.PlannedFile{
			FileEntry: e,
			LocalPath: localPath,
			Strategy:  strategy,
		})
		if e.SizeKnown() {
			total += e.Size
		}
	}

	return types.DownloadPlan{RepoID: repoID, Files: planned, TotalBytes: total}, nil
}

// isAlreadyComplete reports whether a file at local_path with length equal
// to entry.size should be treated as complete and omitted.
// Unknown size never short-circuits as complete (there is nothing to
// compare against).
func isAlreadyComplete(localPath string, e types.FileEntry) (bool, error) {
	if !e.SizeKnown() {
		return false, nil
	}
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Size() == e.Size, nil
}

// RepoDir returns the directory a repo's files are planned into:
// baseDir/<repo_last_segment>. Callers that need to agree with Build on
// exactly which directory holds a repo's files (e.g. the single-instance
// lock) should compute it through this function rather than duplicating
// the join themselves.
func RepoDir(baseDir, repoID string) string {
	return filepath.Join(baseDir, lastSegment(repoID))
}

// lastSegment returns the final "/"-separated component of a repo_id
// ("owner/name" → "name"; a bare legacy id is returned unchanged).
func lastSegment(repoID string) string {
	if idx := strings.LastIndex(repoID, "/"); idx != -1 {
		return repoID[idx+1:]
	}
	return repoID
}
