package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
)

const maxProgressLabel = 48

// progressBar draws a single-line bar for the page-saving phase.
type progressBar struct {
	w     io.Writer
	bar   progress.Model
	total int
	done  int
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (p *progressBar) Start(total int) {
	p.total = total
	p.done = 0
	p.draw("")
}

func (p *progressBar) Advance(pageURL string) {
	p.done++
	p.draw(pageURL)
}

func (p *progressBar) Finish() {
	fmt.Fprintln(p.w)
}

func (p *progressBar) percent() float64 {
	if p.total <= 0 {
		return 1
	}
	return float64(p.done) / float64(p.total)
}

func (p *progressBar) draw(label string) {
	fmt.Fprintf(p.w, "\r%s %d/%d %-*s", p.bar.ViewAs(p.percent()), p.done, p.total, maxProgressLabel, shorten(label, maxProgressLabel))
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n+3:])
}
