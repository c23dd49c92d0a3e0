package classify

import (
	"sort"

	"github.com/samber/lo"

	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/layout"
)

// RuleTable records, per group, what kind of sections ended up in it. It is
// the audit trail of a classification run.
type RuleTable struct {
	Scheme Scheme
	groups map[string]*RuleEntry
}

type RuleEntry struct {
	Group        string
	Sections     map[string]struct{}
	SegmentFlags map[elfio.SegmentFlags]struct{}
	SectionFlags map[elfio.SectionFlags]struct{}
	Types        map[string]struct{}
	Mapped       int
	Unmapped     int
}

func NewRuleTable(scheme Scheme) *RuleTable {
	return &RuleTable{Scheme: scheme, groups: make(map[string]*RuleEntry)}
}

func (t *RuleTable) entry(group string) *RuleEntry {
	e, ok := t.groups[group]
	if !ok {
		e = &RuleEntry{
			Group:        group,
			Sections:     make(map[string]struct{}),
			SegmentFlags: make(map[elfio.SegmentFlags]struct{}),
			SectionFlags: make(map[elfio.SectionFlags]struct{}),
			Types:        make(map[string]struct{}),
		}
		t.groups[group] = e
	}
	return e
}

// Observe records that s, mapped as m, was put into group.
func (t *RuleTable) Observe(group string, s elfio.Section, m layout.Mapping) {
	e := t.entry(group)
	e.Sections[s.Name] = struct{}{}
	e.SectionFlags[s.Flags] = struct{}{}
	e.Types[s.Type.Human()] = struct{}{}
	if m.InLoad {
		e.SegmentFlags[m.SegmentFlags] = struct{}{}
		e.Mapped++
	} else {
		e.Unmapped++
	}
}

// Merge folds other into t.
func (t *RuleTable) Merge(other *RuleTable) {
	if other == nil {
		return
	}
	for g, o := range other.groups {
		e := t.entry(g)
		for k := range o.Sections {
			e.Sections[k] = struct{}{}
		}
		for k := range o.SegmentFlags {
			e.SegmentFlags[k] = struct{}{}
		}
		for k := range o.SectionFlags {
			e.SectionFlags[k] = struct{}{}
		}
		for k := range o.Types {
			e.Types[k] = struct{}{}
		}
		e.Mapped += o.Mapped
		e.Unmapped += o.Unmapped
	}
}

// Groups returns the entries sorted by group name.
func (t *RuleTable) Groups() []*RuleEntry {
	entries := lo.Values(t.groups)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Group < entries[j].Group })
	return entries
}

func (e *RuleEntry) SectionNames() []string {
	names := lo.Keys(e.Sections)
	sort.Strings(names)
	return names
}

func (e *RuleEntry) TypeNames() []string {
	names := lo.Keys(e.Types)
	sort.Strings(names)
	return names
}

func (e *RuleEntry) SegmentPerms() []string {
	perms := lo.Map(lo.Keys(e.SegmentFlags), func(f elfio.SegmentFlags, _ int) string { return f.RWX() })
	sort.Strings(perms)
	return perms
}

func (e *RuleEntry) SectionFlagsHex() []string {
	flags := lo.Keys(e.SectionFlags)
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	return lo.Map(flags, func(f elfio.SectionFlags, _ int) string { return f.Hex() })
}
