package worker

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

const barWidth = 20

// Progress reports a batch of keyed tasks (one per exported level) on a single
// terminal line and keeps enough per-task detail for a closing summary.
type Progress struct {
	start   time.Time
	output  io.Writer
	unit    string
	last    string
	failed  []string
	slowest Result
	total   int
	done    int
	mu      sync.Mutex
	enabled bool
}

// NewProgress tracks total tasks counted in unit ("levels", "tiers"). Nothing is printed
// unless enabled.
func NewProgress(total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "tasks"
	}
	return &Progress{
		unit:    unit,
		total:   total,
		start:   time.Now(),
		output:  os.Stderr,
		enabled: enabled,
	}
}

// Record notes a finished task and redraws the line.
func (p *Progress) Record(r Result) {
	p.mu.Lock()
	p.done++
	p.last = r.Task.Key
	if r.Err != nil {
		p.failed = append(p.failed, r.Task.Key)
	}
	if r.Elapsed > p.slowest.Elapsed {
		p.slowest = r
	}
	line := p.lineLocked()
	p.mu.Unlock()

	if p.enabled {
		fmt.Fprint(p.output, "\r"+line)
	}
}

// Callback returns a ResultFunc for Pool.Config.OnResult.
func (p *Progress) Callback() ResultFunc {
	return p.Record
}

// lineLocked renders e.g. "levels  3/5 [############--------] last 4, 1 failed".
func (p *Progress) lineLocked() string {
	filled := barWidth
	if p.total > 0 {
		filled = min(p.done*barWidth/p.total, barWidth)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %2d/%d [%s%s]", p.unit, p.done, p.total,
		strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled))
	if p.last != "" {
		fmt.Fprintf(&b, " last %s", p.last)
	}
	if n := len(p.failed); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	// Clears leftovers of a longer previous line.
	b.WriteString("    ")
	return b.String()
}

// Done ends the progress line.
func (p *Progress) Done() {
	if p.enabled {
		fmt.Fprintln(p.output)
	}
}

// Summary describes the finished batch for the log.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := formatDuration(time.Since(p.start))
	s := fmt.Sprintf("Finished %d/%d %s in %s", p.done-len(p.failed), p.total, p.unit, elapsed)
	if p.slowest.Task.Key != "" {
		s += fmt.Sprintf(", slowest %s (%s)", p.slowest.Task.Key, p.slowest.Elapsed.Round(time.Millisecond))
	}
	if len(p.failed) > 0 {
		failed := slices.Clone(p.failed)
		slices.Sort(failed)
		s += fmt.Sprintf(", failed: %s", strings.Join(failed, ", "))
	}
	return s
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
