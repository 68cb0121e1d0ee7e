// Package progress renders single-line progress feedback on the status
// stream.
//
// A Progress is safe for concurrent Inc calls. State updates happen under a
// short-lived lock; writing to the terminal happens under a separate lock so
// slow output never blocks producers updating the counter.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// BarLength is the number of cells between the brackets of a bar
const BarLength = 25

// SpinnerFrames are drawn in order by spinners
var SpinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const clearLine = "\r\x1b[2K"

// Kind selects how a Progress is drawn
type Kind int

const (
	KindHidden Kind = iota
	KindSpinner
	KindCounter
	KindBytes
)

// state is a snapshot of a Progress
type state struct {
	prefix  string
	title   string
	total   uint64
	current uint64
	frame   int
}

func (s state) label() string {
	if s.title == "" {
		return s.prefix
	}
	return s.prefix + " " + s.title
}

func (s state) percent() uint64 {
	if s.total == 0 {
		return 0
	}
	pct := s.current * 100 / s.total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// renderer draws one line for a state
type renderer interface {
	render(s state) string
}

type spinnerRenderer struct{}

func (spinnerRenderer) render(s state) string {
	return fmt.Sprintf(" %s %s", SpinnerFrames[s.frame%len(SpinnerFrames)], s.label())
}

type counterRenderer struct{}

func (counterRenderer) render(s state) string {
	pct := s.percent()
	return fmt.Sprintf("%s %d%%: %s", bar(pct), pct, s.label())
}

type bytesRenderer struct{}

func (bytesRenderer) render(s state) string {
	pct := s.percent()
	return fmt.Sprintf("%s %d%% (%s/%s): %s", bar(pct), pct,
		humanize.Bytes(s.current), humanize.Bytes(s.total), s.label())
}

// bar draws [=====>     ] for a percentage
func bar(pct uint64) string {
	filled := int(pct * BarLength / 100)
	if filled > BarLength {
		filled = BarLength
	}

	var b strings.Builder
	b.Grow(BarLength + 2)
	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", filled))
	if filled < BarLength {
		b.WriteByte('>')
		b.WriteString(strings.Repeat(" ", BarLength-filled-1))
	}
	b.WriteByte(']')
	return b.String()
}

// Progress is one progress line
type Progress struct {
	kind     Kind
	renderer renderer

	mu       sync.Mutex
	st       state
	finished bool

	outMu     sync.Mutex
	out       io.Writer
	width     int
	drawnUpTo uint64

	driveMu sync.Mutex
	stop    func()
}

func newProgress(kind Kind, prefix string, out io.Writer) *Progress {
	p := &Progress{kind: kind, out: out, st: state{prefix: prefix}}
	switch kind {
	case KindSpinner:
		p.renderer = spinnerRenderer{}
	case KindCounter:
		p.renderer = counterRenderer{}
	case KindBytes:
		p.renderer = bytesRenderer{}
	}
	return p
}

// Kind returns how the progress is drawn
func (p *Progress) Kind() Kind {
	return p.kind
}

// IsHidden reports whether nothing is drawn
func (p *Progress) IsHidden() bool {
	return p.renderer == nil
}

// SetLength sets the expected total
func (p *Progress) SetLength(total uint64) {
	p.mu.Lock()
	p.st.total = total
	p.mu.Unlock()
}

// SetTitle sets the text shown after the prefix and redraws
func (p *Progress) SetTitle(title string) {
	p.mu.Lock()
	p.st.title = title
	snap := p.st
	p.mu.Unlock()

	p.draw(snap)
}

// Inc adds n to the current value and redraws. Safe for concurrent use.
func (p *Progress) Inc(n uint64) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.st.current += n
	if p.st.total > 0 && p.st.current > p.st.total {
		p.st.current = p.st.total
	}
	snap := p.st
	p.mu.Unlock()

	p.draw(snap)
}

// Tick advances the spinner frame and redraws
func (p *Progress) Tick() {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.st.frame++
	snap := p.st
	p.mu.Unlock()

	p.draw(snap)
}

// Current returns the accumulated value
func (p *Progress) Current() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.current
}

// Total returns the expected total
func (p *Progress) Total() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.total
}

// Drive redraws the line every interval until the returned stop function is
// called. stop is idempotent, waits for the redraw loop to exit and clears
// the line. Finish calls it as well.
func (p *Progress) Drive(interval time.Duration) (stop func()) {
	if p.IsHidden() {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(done)
			<-exited
			p.clear()
		})
	}

	p.driveMu.Lock()
	prev := p.stop
	p.stop = stop
	p.driveMu.Unlock()
	if prev != nil {
		prev()
	}
	return stop
}

// Finish sets current to total, stops any redraw loop and prints the final
// line. Later calls do nothing.
func (p *Progress) Finish() {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	p.st.current = p.st.total
	snap := p.st
	p.mu.Unlock()

	p.driveMu.Lock()
	stop := p.stop
	p.stop = nil
	p.driveMu.Unlock()
	if stop != nil {
		stop()
	}

	if p.IsHidden() {
		return
	}

	p.outMu.Lock()
	defer p.outMu.Unlock()
	line := fmt.Sprintf(" %s ✓", snap.label())
	fmt.Fprintf(p.out, "\r%s%s\n", line, p.padding(line))
	p.width = 0
}

// draw writes the line for snap in place. Snapshots older than what is
// already on screen are dropped so the display never moves backwards.
func (p *Progress) draw(snap state) {
	if p.IsHidden() {
		return
	}

	p.outMu.Lock()
	defer p.outMu.Unlock()

	if snap.current < p.drawnUpTo {
		return
	}
	p.drawnUpTo = snap.current

	line := p.renderer.render(snap)
	fmt.Fprintf(p.out, "\r%s%s", line, p.padding(line))
	if w := utf8.RuneCountInString(line); w > p.width {
		p.width = w
	}
}

// padding returns the spaces needed to overwrite the widest line so far
func (p *Progress) padding(line string) string {
	w := utf8.RuneCountInString(line)
	if w >= p.width {
		return ""
	}
	return strings.Repeat(" ", p.width-w)
}

func (p *Progress) clear() {
	if p.IsHidden() {
		return
	}
	p.outMu.Lock()
	defer p.outMu.Unlock()
	io.WriteString(p.out, clearLine)
}
