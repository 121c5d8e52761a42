// Package progress renders a types.ScanProgress stream to a terminal
// progress bar, wrapping the same schollz/progressbar library the
// teacher uses for its copy/verify phases.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ivoronin/volscan/internal/types"
)

const updateInterval = 50 * time.Millisecond

// percentScale is the bar's fixed total: Coordinator reports percent
// directly (0-100; capped at 95 while entries stream in, then 95, 98 and
// 100 as the build, analysis and finish phases are reached), so the bar is
// always determinate over that scale rather than over an entry count.
const percentScale = 1000

// Bar wraps progressbar with enabled/disabled handling. All methods are
// no-ops when disabled, so callers never need an `if enabled` branch of
// their own.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New creates a progress bar over the 0-100 percent scale. If
// enabled=false, returns a Bar where all methods are no-ops — the
// CLI's --no-progress and --json flags both route here; whether stderr
// is a terminal is not checked.
func New(enabled bool) *Bar {
	if !enabled {
		return &Bar{}
	}

	bar := progressbar.NewOptions(percentScale,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetElapsedTime(true),
	)
	return &Bar{bar: bar}
}

// Update renders one ScanProgress snapshot: the percent value scaled
// onto the bar's fixed total, and the current path as the description.
func (b *Bar) Update(p types.ScanProgress) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Set(int(p.Percent * percentScale / 100))
	if p.CurrentPath != "" {
		b.bar.Describe(truncatePath(p.CurrentPath, 60))
	}
}

// Finish completes the bar and prints a final summary line.
func (b *Bar) Finish(summary fmt.Stringer) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	fmt.Fprintln(os.Stderr, "✔ "+summary.String())
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "…" + path[len(path)-max+1:]
}
