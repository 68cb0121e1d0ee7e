package progress

import (
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// RedrawInterval is how often driven progress lines are redrawn
const RedrawInterval = 100 * time.Millisecond

// Bars creates progress lines that share one output stream
type Bars struct {
	out     io.Writer
	visible bool
}

// NewBars draws on out. When visible is false every Progress is hidden.
func NewBars(out io.Writer, visible bool) *Bars {
	return &Bars{out: out, visible: visible}
}

// Stderr draws on stderr when it is a terminal and quiet is false
func Stderr(quiet bool) *Bars {
	visible := !quiet && term.IsTerminal(int(os.Stderr.Fd()))
	return NewBars(os.Stderr, visible)
}

// Visible reports whether bars made by b are drawn
func (b *Bars) Visible() bool {
	return b.visible
}

// NoBars returns a factory whose bars draw nothing
func NoBars() *Bars {
	return NewBars(io.Discard, false)
}

// Spinner returns an indeterminate progress
func (b *Bars) Spinner(prefix string) *Progress {
	return b.make(KindSpinner, prefix)
}

// Counter returns a bounded progress counting items
func (b *Bars) Counter(prefix string) *Progress {
	return b.make(KindCounter, prefix)
}

// Bytes returns a bounded progress counting bytes
func (b *Bars) Bytes(prefix string) *Progress {
	return b.make(KindBytes, prefix)
}

func (b *Bars) make(kind Kind, prefix string) *Progress {
	if !b.visible {
		kind = KindHidden
	}
	return newProgress(kind, prefix, b.out)
}
