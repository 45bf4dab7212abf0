// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar prints an in-place progress bar to the terminal. It is
// driven manually: call Increment once per completed iteration and
// Close when done. Drawing happens on the calling goroutine, rate
// limited so that tight loops do not spend their time printing.
type ProgressBar struct {
	width    int
	total    int
	current  int
	start    time.Time
	lastDraw time.Time
	minDelay time.Duration
	closed   bool
}

// New returns a progress bar that is width characters wide and
// reaches 100% after total Increment calls. The bar redraws at most
// once per minDelay.
func New(width, total int, minDelay time.Duration) *ProgressBar {
	return &ProgressBar{
		width:    width,
		total:    total,
		start:    time.Now(),
		minDelay: minDelay,
	}
}

// Increment advances the bar by one iteration and redraws it if the
// minimum delay has passed.
func (p *ProgressBar) Increment() {
	if p.closed || p.current >= p.total {
		return
	}
	p.current++

	now := time.Now()
	if p.current < p.total && now.Sub(p.lastDraw) < p.minDelay {
		return
	}
	p.lastDraw = now
	p.draw()
}

// Close finalizes the bar, drawing it one last time and jumping to the
// next terminal line.
func (p *ProgressBar) Close() {
	if p.closed {
		panic("close: close on closed progress bar")
	}
	p.closed = true
	p.draw()
	fmt.Println()
}

func (p *ProgressBar) draw() {
	filled := p.current * p.width / p.total

	var bar strings.Builder
	bar.WriteString("|")
	for i := 0; i < filled; i++ {
		bar.WriteString("█")
	}
	for i := filled; i < p.width; i++ {
		bar.WriteString(" ")
	}
	fmt.Printf("\r\033[K%v| [%3.0f%% | elapsed: %v]", bar.String(),
		float64(p.current)/float64(p.total)*100,
		time.Since(p.start).Round(time.Second))
}
