package main

import (
	"io"

	"github.com/pterm/pterm"
)

// progressBar renders converter progress callbacks as a terminal progress
// bar. Converters report several passes through one callback; a changed total
// or a done count running backwards means a new pass began and gets a fresh
// bar.
type progressBar struct {
	out io.Writer
	bar *pterm.ProgressbarPrinter
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

func (p *progressBar) update(done, total int) {
	if p.bar != nil && (p.bar.Total != total || done < p.bar.Current) {
		p.finish()
	}
	if p.bar == nil {
		bar, err := pterm.DefaultProgressbar.WithTotal(total).WithWriter(p.out).Start()
		if err != nil {
			return
		}
		p.bar = bar
	}
	if done > p.bar.Current {
		p.bar.Add(done - p.bar.Current)
	}
	if p.bar.Current >= p.bar.Total {
		p.finish()
	}
}

// finish stops the active bar, leaving it rendered at its final count.
func (p *progressBar) finish() {
	if p.bar == nil {
		return
	}
	_, _ = p.bar.Stop()
	p.bar = nil
}
