package summary

import "fmt"

// Stats counts what happened to the files of a tree walk.
type Stats struct {
	// Scanned is every regular file visited.
	Scanned int
	// Classified files contributed to the summaries.
	Classified int
	// NotBinary files did not carry the ELF magic.
	NotBinary int
	// Filtered files were left out by the allow list.
	Filtered int
	// Failed files could not be read or parsed.
	Failed int
}

// Skipped is the number of scanned files that did not contribute.
func (s Stats) Skipped() int { return s.NotBinary + s.Filtered + s.Failed }

func (s *Stats) Merge(o Stats) {
	s.Scanned += o.Scanned
	s.Classified += o.Classified
	s.NotBinary += o.NotBinary
	s.Filtered += o.Filtered
	s.Failed += o.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("%d files scanned / %d classified / %d skipped (not binary: %d, filtered: %d, failed: %d)",
		s.Scanned, s.Classified, s.Skipped(), s.NotBinary, s.Filtered, s.Failed)
}
