package transfer

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Reporter receives transfer progress. Implementations must be safe for
// concurrent use; calls arrive from every in-flight transfer goroutine
// and must not serialize them.
type Reporter interface {
	// BatchStart announces a batch: job count and total bytes (0 when
	// sizes are unknown).
	BatchStart(jobs int, totalBytes int64)
	// Start announces one job beginning to move bytes.
	Start(jobID, name string, total int64)
	// Progress reports a byte-count delta for a job.
	Progress(jobID string, delta int64)
	// Finish marks a job done or failed.
	Finish(jobID string, err error)
	// BatchEnd flushes any display state.
	BatchEnd()
}

// NopReporter discards all progress. Use in tests.
type NopReporter struct{}

func (NopReporter) BatchStart(int, int64)       {}
func (NopReporter) Start(string, string, int64) {}
func (NopReporter) Progress(string, int64)      {}
func (NopReporter) Finish(string, error)        {}
func (NopReporter) BatchEnd()                   {}

// Console renders a single-line aggregate progress display, rewritten in
// place and throttled to ~10 updates per second. On a non-terminal
// stderr it stays silent, so logs and CI output are not flooded.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	isTerminal bool
	jobs       int
	finished   int
	totalBytes int64
	doneBytes  int64
	lastTick   time.Time
}

// NewConsole creates a console reporter on stderr.
func NewConsole() *Console {
	return &Console{
		w:          os.Stderr,
		isTerminal: term.IsTerminal(int(os.Stderr.Fd())),
	}
}

func (c *Console) BatchStart(jobs int, totalBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = jobs
	c.finished = 0
	c.totalBytes = totalBytes
	c.doneBytes = 0
}

func (c *Console) Start(string, string, int64) {}

func (c *Console) Progress(_ string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doneBytes += delta
	c.render(false)
}

func (c *Console) Finish(_ string, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++
	c.render(false)
}

func (c *Console) BatchEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isTerminal || c.jobs == 0 {
		return
	}
	c.render(true)
	fmt.Fprintln(c.w)
}

// render redraws the progress line. Callers hold c.mu.
func (c *Console) render(force bool) {
	if !c.isTerminal {
		return
	}
	if !force && time.Since(c.lastTick) < 100*time.Millisecond {
		return
	}
	c.lastTick = time.Now()

	if c.totalBytes > 0 {
		pct := float64(c.doneBytes) / float64(c.totalBytes) * 100
		if pct > 100 {
			pct = 100
		}
		fmt.Fprintf(c.w, "\r%d/%d files  %s / %s (%.1f%%)   ",
			c.finished, c.jobs, humanBytes(c.doneBytes), humanBytes(c.totalBytes), pct)
	} else {
		fmt.Fprintf(c.w, "\r%d/%d files  %s   ",
			c.finished, c.jobs, humanBytes(c.doneBytes))
	}
}

func humanBytes(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
