package main

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/mrsinham/dicombatch/internal/pool"
)

// progress draws a bar on a terminal. The bar is created on the first
// update so it can use the total reported by the work itself; a negative
// total draws a spinner with a running count. A nil *progress does nothing.
type progress struct {
	w           io.Writer
	description string

	start  sync.Once
	finish sync.Once
	bar    *progressbar.ProgressBar
}

// newProgress returns nil when w is not a terminal.
func newProgress(w io.Writer, description string) *progress {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}
	return &progress{w: w, description: description}
}

// Callback returns the update function, nil for a nil progress.
func (p *progress) Callback() pool.ProgressCallback {
	if p == nil {
		return nil
	}
	return func(current, total int) {
		p.start.Do(func() {
			p.bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(p.w),
				progressbar.OptionSetDescription(p.description),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		})
		_ = p.bar.Set(current)
	}
}

// Finish clears the bar. Later calls do nothing.
func (p *progress) Finish() {
	if p == nil {
		return
	}
	p.finish.Do(func() {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
	})
}
