// Package reporter is a terminal progress display for a run in progress.
// Grounded on a tea.Tick poll loop and session-relative EMA speed
// smoothing, scaled down from one file's pause/resume-aware state to a
// flat registry of every file the scheduler has started, rendered with
// lipgloss instead of a full list/graph/view component tree (dropped — a
// single-shot CLI run has no per-download pause/cancel keybindings to
// host).
package reporter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

const (
	pollInterval  = 150 * time.Millisecond
	speedEMAAlpha = 0.3
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	barFillRune = "█"
	barVoidRune = "░"
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

type fileEntry struct {
	path  string
	size  int64
	state *types.ProgressState
}

// Reporter tracks every file a run has started and renders their combined
// progress. Reporter.Register is handed to engine.Options.OnFileStart.
type Reporter struct {
	mu       sync.Mutex
	repoID   string
	files    []*fileEntry
	lastSpeedSum float64

	program *tea.Program
	done    chan struct{}
}

// New constructs a reporter for one repo_id's run.
func New(repoID string) *Reporter {
	return &Reporter{repoID: repoID, done: make(chan struct{})}
}

// Register creates and tracks a new ProgressState for path, suitable for
// use as engine.Options.OnFileStart.
func (r *Reporter) Register(path string, size int64) *types.ProgressState {
	state := types.NewProgressState(path, size)
	r.mu.Lock()
	r.files = append(r.files, &fileEntry{path: path, size: size, state: state})
	r.mu.Unlock()
	return state
}

// Start launches the bubbletea program rendering this reporter's progress
// in the background. Call Stop when the run completes.
func (r *Reporter) Start() {
	m := &model{r: r}
	r.program = tea.NewProgram(m)
	go func() {
		r.program.Run() //nolint:errcheck // best-effort TUI; run failures don't affect the download
		close(r.done)
	}()
}

// Stop quits the bubbletea program and waits for it to release the terminal.
func (r *Reporter) Stop() {
	if r.program == nil {
		return
	}
	r.program.Quit()
	<-r.done
}

type tickMsg time.Time

type model struct {
	r *Reporter
}

func (m *model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.KeyMsg:
		return m, nil
	}
	return m, nil
}

func (m *model) View() string {
	return m.r.render()
}

// render composes the multi-file progress view. It is called directly by
// View(), not gated on tickMsg, so the very first frame already has data.
func (r *Reporter) render() string {
	r.mu.Lock()
	entries := make([]*fileEntry, len(r.files))
	copy(entries, r.files)
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("hfd: %s", r.repoID)))
	b.WriteString("\n\n")

	var totalDownloaded, totalSize int64
	var speedSum float64
	for _, e := range entries {
		downloaded, total, elapsed, _, sessionStart := e.state.GetProgress()
		totalDownloaded += downloaded
		if total > 0 {
			totalSize += total
		}

		sessionDownloaded := downloaded - sessionStart
		var speed float64
		if elapsed.Seconds() > 0 && sessionDownloaded > 0 {
			speed = float64(sessionDownloaded) / elapsed.Seconds()
		}
		speedSum += speed

		b.WriteString(fileLine(e.path, downloaded, total))
		b.WriteString("\n")
	}

	r.mu.Lock()
	if r.lastSpeedSum == 0 {
		r.lastSpeedSum = speedSum
	} else {
		r.lastSpeedSum = speedEMAAlpha*speedSum + (1-speedEMAAlpha)*r.lastSpeedSum
	}
	smoothedSpeed := r.lastSpeedSum
	r.mu.Unlock()

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s / %s  %s/s",
		humanize.Bytes(uint64(totalDownloaded)), humanize.Bytes(uint64(totalSize)), humanize.Bytes(uint64(smoothedSpeed)))))
	return b.String()
}

func fileLine(path string, downloaded, total int64) string {
	const barWidth = 30
	var frac float64
	if total > 0 {
		frac = float64(downloaded) / float64(total)
		if frac > 1 {
			frac = 1
		}
	}
	filled := int(frac * barWidth)
	bar := strings.Repeat(barFillRune, filled) + strings.Repeat(barVoidRune, barWidth-filled)
	return fmt.Sprintf("%-40s [%s] %s/%s", truncate(path, 40), bar, humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n+1:]
}
