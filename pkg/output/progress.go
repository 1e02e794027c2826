package output

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/sdejongh/tfm/pkg/tasks"
)

const progressTemplate = `{{string . "prefix"}}{{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{etime . }} {{string . "item"}}`

// updateInterval returns the progress refresh interval based on OS.
// Windows terminals have higher latency with ANSI sequences.
func updateInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 300 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// terminalWidth returns the width of w, or 120 for pipes and redirects
func terminalWidth(w io.Writer) int {
	if file, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 120
}

// ProgressBar renders the progress of a background task
type ProgressBar struct {
	bar   *pb.ProgressBar
	width int
}

// NewProgressBar starts a bar on w labelled with label
func NewProgressBar(w io.Writer, label string) *ProgressBar {
	width := terminalWidth(w)
	bar := pb.New64(0).
		SetTemplateString(progressTemplate).
		SetWriter(w).
		SetRefreshRate(updateInterval()).
		SetMaxWidth(width).
		Set("prefix", label+" ").
		Set(pb.CleanOnFinish, true)
	bar.Start()
	return &ProgressBar{bar: bar, width: width}
}

// Update copies a task progress snapshot into the bar
func (p *ProgressBar) Update(progress tasks.Progress) {
	p.bar.SetTotal(progress.Total)
	p.bar.SetCurrent(progress.Done)
	p.bar.Set("item", truncateMiddle(progress.Current, p.width/3))
}

// Option feeds the bar from a task
func (p *ProgressBar) Option() tasks.Option {
	return tasks.WithProgress(p.Update)
}

// Finish stops and clears the bar
func (p *ProgressBar) Finish() {
	p.bar.Finish()
}

// truncateMiddle shortens s to max runes, keeping both ends
func truncateMiddle(s string, max int) string {
	r := []rune(s)
	if max < 5 || len(r) <= max {
		return s
	}
	keep := (max - 3) / 2
	return string(r[:keep]) + "..." + string(r[len(r)-(max-3-keep):])
}
