package summary

import (
	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/layout"
)

// Entry is the accounted size of one section name within a binary.
type Entry struct {
	Size  uint64
	Type  elfio.SectionType
	Flags elfio.SectionFlags
}

// BinarySummary holds the classified sections of a single binary, keyed by
// group and then by section name.
type BinarySummary struct {
	Groups  map[string]map[string]Entry
	Overlay map[string]map[string]Entry
	// LoadSize is the sum of the PT_LOAD p_memsz of the binary.
	LoadSize uint64
	// FileSize is the size of the binary on disk.
	FileSize uint64
}

func NewBinarySummary() *BinarySummary {
	return &BinarySummary{
		Groups:  make(map[string]map[string]Entry),
		Overlay: make(map[string]map[string]Entry),
	}
}

func add(m map[string]map[string]Entry, group string, s elfio.Section) {
	sections, ok := m[group]
	if !ok {
		sections = make(map[string]Entry)
		m[group] = sections
	}
	e := sections[s.Name]
	e.Size += s.Size
	e.Type = s.Type
	e.Flags = s.Flags
	sections[s.Name] = e
}

func totals(m map[string]map[string]Entry) map[string]uint64 {
	res := make(map[string]uint64, len(m))
	for g, sections := range m {
		var sum uint64
		for _, e := range sections {
			sum += e.Size
		}
		res[g] = sum
	}
	return res
}

// Totals returns the summed section sizes per group.
func (b *BinarySummary) Totals() map[string]uint64 { return totals(b.Groups) }

func (b *BinarySummary) OverlayTotals() map[string]uint64 { return totals(b.Overlay) }

// Total is the sum over all groups, overlay excluded.
func (b *BinarySummary) Total() uint64 {
	var sum uint64
	for _, v := range b.Totals() {
		sum += v
	}
	return sum
}

// Filter drops sections by name before they are classified. An empty
// Include keeps every section.
type Filter struct {
	Include map[string]struct{}
	Exclude map[string]struct{}
}

func (f Filter) Keep(name string) bool {
	if _, ok := f.Exclude[name]; ok {
		return false
	}
	if len(f.Include) == 0 {
		return true
	}
	_, ok := f.Include[name]
	return ok
}

// Summarize maps and classifies every section of f. Zero sized sections are
// kept with a size of zero. Sections sharing a name accumulate. When rules
// is not nil every assignment is recorded in it.
func Summarize(f *elfio.File, c classify.Classifier, filter Filter, rules *classify.RuleTable) *BinarySummary {
	b := SummarizeMapped(f.Sections, layout.MapFile(f), c, filter, rules)
	b.LoadSize = f.LoadSize()
	b.FileSize = uint64(f.Size)
	return b
}

// SummarizeMapped is Summarize for sections whose mappings are already
// known. mappings[i] belongs to sections[i].
func SummarizeMapped(sections []elfio.Section, mappings []layout.Mapping, c classify.Classifier, filter Filter, rules *classify.RuleTable) *BinarySummary {
	b := NewBinarySummary()
	for i, s := range sections {
		if !filter.Keep(s.Name) {
			continue
		}
		m := mappings[i]
		a := c.Classify(s, m)
		add(b.Groups, a.Group, s)
		if rules != nil {
			rules.Observe(a.Group, s, m)
		}
		if a.Overlay != "" {
			add(b.Overlay, a.Overlay, s)
			if rules != nil {
				rules.Observe(a.Overlay, s, m)
			}
		}
	}
	return b
}
