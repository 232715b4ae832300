package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar shows how many of a known number of keys have been fetched.
// Add may be called from several goroutines.
type ProgressBar struct {
	w     io.Writer
	title string
	width int
	start time.Time

	mu      sync.Mutex
	total   int64
	current int64
}

// NewProgressBar creates a bar for total items.
func NewProgressBar(w io.Writer, title string, total int64) *ProgressBar {
	return &ProgressBar{
		w:     w,
		title: title,
		width: 40,
		total: total,
		start: time.Now(),
	}
}

// Add records n more items.
func (p *ProgressBar) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.render()
}

// Current returns the items recorded so far.
func (p *ProgressBar) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish renders the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	rate := ""
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		rate = fmt.Sprintf(" %s/s", FormatCount(int64(float64(p.current)/secs)))
	}

	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s%s", p.title, FormatCount(p.current), rate)
		return
	}

	ratio := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * ratio)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)%s",
		p.title, bar, ratio*100,
		FormatCount(p.current), FormatCount(p.total), rate)
}

// FormatCount abbreviates large counts: 1500 -> "1.5k".
func FormatCount(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1_000_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	}
}

// FormatBytes formats a byte size with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
