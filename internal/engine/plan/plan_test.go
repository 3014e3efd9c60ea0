package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

func TestBuild_SkipsAlreadyCompleteFiles(t *testing.T) {
	base := t.TempDir()
	repoDir := filepath.Join(base, "my-model")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatal(err)
	}
	complete := filepath.Join(repoDir, "config.json")
	if err := os.WriteFile(complete, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	entries := []types.FileEntry{
		{Path: "config.json", Size: 2},
		{Path: "model.bin", Size: 100},
	}

	p, err := Build("org/my-model", entries, base, 50*types.MB)
	if err != nil {
		t.Fatal(err)
	}

	if len(p.Files) != 1 {
		t.Fatalf("expected 1 outstanding file, got %d", len(p.Files))
	}
	if p.Files[0].Path != "model.bin" {
		t.Errorf("expected model.bin to remain, got %s", p.Files[0].Path)
	}
}

func TestBuild_AssignsStrategyByThreshold(t *testing.T) {
	base := t.TempDir()
	entries := []types.FileEntry{
		{Path: "small.json", Size: 10},
		{Path: "big.bin", Size: 1000},
	}

	p, err := Build("org/name", entries, base, 500)
	if err != nil {
		t.Fatal(err)
	}

	byPath := map[string]types.PlannedFile{}
	for _, f := range p.Files {
		byPath[f.Path] = f
	}

	if byPath["small.json"].Strategy != types.StrategySmall {
		t.Error("file below threshold should use StrategySmall")
	}
	if byPath["big.bin"].Strategy != types.StrategyChunked {
		t.Error("file above threshold should use StrategyChunked")
	}
}

func TestBuild_UnknownSizeUsesSmallStrategyAndNeverCountsAsComplete(t *testing.T) {
	base := t.TempDir()
	entries := []types.FileEntry{{Path: "mystery.bin", Size: -1}}

	p, err := Build("org/name", entries, base, 50*types.MB)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Files) != 1 {
		t.Fatalf("expected the unknown-size file to remain outstanding, got %d files", len(p.Files))
	}
	if p.Files[0].Strategy != types.StrategySmall {
		t.Error("unknown size should never trigger chunked strategy")
	}
	if p.TotalBytes != 0 {
		t.Errorf("TotalBytes should not count unknown-size entries, got %d", p.TotalBytes)
	}
}

func TestBuild_ComputesLocalPathFromLastRepoSegment(t *testing.T) {
	base := t.TempDir()
	entries := []types.FileEntry{{Path: "sub/dir/weights.bin", Size: 10}}

	p, err := Build("my-org/my-model", entries, base, 50*types.MB)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(base, "my-model", "sub", "dir", "weights.bin")
	if p.Files[0].LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", p.Files[0].LocalPath, want)
	}
}

func TestBuild_SumsOnlyKnownSizes(t *testing.T) {
	base := t.TempDir()
	entries := []types.FileEntry{
		{Path: "a.bin", Size: 100},
		{Path: "b.bin", Size: 200},
		{Path: "c.bin", Size: -1},
	}

	p, err := Build("org/name", entries, base, 50*types.MB)
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalBytes != 300 {
		t.Errorf("TotalBytes = %d, want 300", p.TotalBytes)
	}
}
