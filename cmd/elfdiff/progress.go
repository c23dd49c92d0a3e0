package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"

	"github.com/grafana/elfdiff/pkg/scan"
)

// startProgress shows a spinner with the number of processed files while
// stderr is a terminal. The returned func stops it.
func startProgress(a *scan.Aggregator) func() {
	if cfg.verbose || !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.PreUpdate = func(s *spinner.Spinner) {
		s.Suffix = fmt.Sprintf(" %d files processed", a.Processed())
	}
	s.Start()
	return s.Stop
}
