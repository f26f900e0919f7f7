// Package progress provides a unified interface for progress reporting
// across CLI (progress bars) and GUI (event bus) modes, and the glue that
// feeds catalog bulk operations into it.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/events"
	"github.com/rescale/brocoli/internal/http"
)

// Reporter is the interface for reporting progress in both CLI and GUI modes.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// Drive consumes seq, feeding every unit to r. total is the number of items
// the operation was started with. It returns the number of completed items
// and the error that ended the operation, if any.
func Drive(seq catalog.Seq, total int, label string, r Reporter) (int, error) {
	r.Start(int64(total), label)
	done := 0
	for p, err := range seq {
		if err != nil {
			r.Error(err)
			return done, err
		}
		done = p.Done
		r.Update(int64(p.Done))
	}
	r.Finish()
	return done, nil
}

// CLIProgress implements progress reporting for CLI mode using progress bars.
type CLIProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

// NewCLIProgress creates a new CLI progress reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{out: os.Stderr}
}

// NewCLIProgressTo creates a CLI progress reporter writing to w.
func NewCLIProgressTo(w io.Writer) *CLIProgress {
	return &CLIProgress{out: w}
}

// Start initializes the progress bar with the item count and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(constants.ProgressBarWidth),
		progressbar.OptionThrottle(constants.ProgressThrottle),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update updates the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// BusProgress publishes progress on an event bus, for GUI front ends.
type BusProgress struct {
	bus       *events.EventBus
	operation string
	label     string
	total     int
	current   int
	started   time.Time
}

// NewBusProgress creates a reporter publishing events for operation.
func NewBusProgress(bus *events.EventBus, operation string) *BusProgress {
	return &BusProgress{bus: bus, operation: operation}
}

// Start publishes a started event.
func (p *BusProgress) Start(total int64, description string) {
	p.total = int(total)
	p.current = 0
	p.label = description
	p.started = time.Now()
	p.bus.PublishStarted(p.operation, p.label, p.total)
}

// Update publishes a progress event.
func (p *BusProgress) Update(current int64) {
	p.current = int(current)
	p.bus.PublishProgress(p.operation, p.label, p.current, p.total)
}

// Finish publishes a completion event.
func (p *BusProgress) Finish() {
	p.bus.PublishComplete(p.operation, p.label, p.current, time.Since(p.started))
}

// Error publishes an error event.
func (p *BusProgress) Error(err error) {
	if err != nil {
		p.bus.PublishError(p.operation, p.label, p.current, err, http.IsNetworkError(err))
	}
}

// SetDescription changes the label of subsequent events.
func (p *BusProgress) SetDescription(desc string) {
	p.label = desc
}

// NoOpProgress is a progress reporter that does nothing (for background/silent operations).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                               {}
func (p *NoOpProgress) Error(err error)                       {}
func (p *NoOpProgress) SetDescription(desc string)            {}

// Tee returns a reporter forwarding every call to each of rs.
func Tee(rs ...Reporter) Reporter {
	return tee(rs)
}

type tee []Reporter

func (t tee) Start(total int64, description string) {
	for _, r := range t {
		r.Start(total, description)
	}
}

func (t tee) Update(current int64) {
	for _, r := range t {
		r.Update(current)
	}
}

func (t tee) Finish() {
	for _, r := range t {
		r.Finish()
	}
}

func (t tee) Error(err error) {
	for _, r := range t {
		r.Error(err)
	}
}

func (t tee) SetDescription(desc string) {
	for _, r := range t {
		r.SetDescription(desc)
	}
}

var (
	_ Reporter = (*CLIProgress)(nil)
	_ Reporter = (*BusProgress)(nil)
	_ Reporter = (*NoOpProgress)(nil)
)
