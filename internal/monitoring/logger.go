package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Progress reports the completion percentage of a long batch step through
// Logf. It logs only when the percentage crosses a new step boundary, so a
// grid of a million nodes produces a handful of lines.
type Progress struct {
	label string
	total int
	step  int
	done  int
	last  int
}

// NewProgress returns a reporter for total units of work, logging every
// step percent. A step outside (0, 100] falls back to 10.
func NewProgress(label string, total, step int) *Progress {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &Progress{label: label, total: total, step: step, last: -1}
}

// Add records n completed units.
func (p *Progress) Add(n int) {
	if p == nil || p.total <= 0 {
		return
	}
	p.done += n
	if p.done > p.total {
		p.done = p.total
	}
	pct := 100 * p.done / p.total
	bucket := pct / p.step
	if bucket > p.last {
		p.last = bucket
		Logf("[%s] %d%% (%d/%d)", p.label, pct, p.done, p.total)
	}
}

// Percent returns the completion percentage so far.
func (p *Progress) Percent() int {
	if p == nil || p.total <= 0 {
		return 100
	}
	return 100 * p.done / p.total
}
