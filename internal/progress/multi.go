package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// MultiUI shows one bar per concurrent bulk operation using mpb. Without a
// terminal it prints one line per finished operation instead.
type MultiUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalOps   int
	completed  atomic.Int32
}

// NewMultiUI creates a UI for totalOps operations, drawing on stderr when it
// is a terminal.
func NewMultiUI(totalOps int) *MultiUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	return newMultiUI(totalOps, os.Stderr, isTerminal)
}

func newMultiUI(totalOps int, out io.Writer, isTerminal bool) *MultiUI {
	var p *mpb.Progress
	if isTerminal {
		if f, ok := out.(*os.File); ok {
			enableANSI(f)
		}
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &MultiUI{progress: p, out: out, isTerminal: isTerminal, totalOps: totalOps}
}

// Bar is the Reporter of one operation inside a MultiUI.
type Bar struct {
	ui      *MultiUI
	index   int
	bar     *mpb.Bar
	label   atomic.Value // string
	total   int64
	current int64
	started time.Time
}

// AddBar registers operation number index (1-based, for display).
func (u *MultiUI) AddBar(index int) *Bar {
	b := &Bar{ui: u, index: index}
	b.label.Store("")
	return b
}

// Start creates the mpb bar. Reporter contract: called once per operation.
func (b *Bar) Start(total int64, description string) {
	b.label.Store(description)
	b.total = total
	b.started = time.Now()
	if !b.ui.isTerminal {
		return
	}
	b.bar = b.ui.progress.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("[%d/%d] %s", b.index, b.ui.totalOps, b.label.Load().(string))
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
}

// Update moves the bar to current items.
func (b *Bar) Update(current int64) {
	b.current = current
	if b.bar != nil {
		b.bar.SetCurrent(current)
	}
}

// Finish completes the bar and prints a summary line above the bars.
func (b *Bar) Finish() {
	if b.bar != nil {
		b.bar.SetTotal(b.total, true)
	}
	b.ui.completed.Add(1)
	b.ui.print(fmt.Sprintf("✓ %s (%d items, %s)\n", b.label.Load().(string), b.current, time.Since(b.started).Round(time.Millisecond)))
}

// Error aborts the bar, leaving it visible, and prints the failure.
func (b *Bar) Error(err error) {
	if err == nil {
		return
	}
	if b.bar != nil {
		b.bar.Abort(false)
	}
	b.ui.completed.Add(1)
	b.ui.print(fmt.Sprintf("✗ %s: %v (after %d items)\n", b.label.Load().(string), err, b.current))
}

// SetDescription changes the label shown in front of the bar.
func (b *Bar) SetDescription(desc string) {
	b.label.Store(desc)
}

func (u *MultiUI) print(msg string) {
	// Write through mpb's writer so that bars are redrawn below the message.
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	_, _ = io.WriteString(u.out, msg)
}

// Wait blocks until all bars complete.
func (u *MultiUI) Wait() {
	u.progress.Wait()
}

// Completed returns the number of operations that finished, successfully or not.
func (u *MultiUI) Completed() int {
	return int(u.completed.Load())
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *MultiUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns whether bars are drawn.
func (u *MultiUI) IsTerminal() bool {
	return u.isTerminal
}

var _ Reporter = (*Bar)(nil)
