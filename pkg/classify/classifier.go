package classify

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/layout"
)

// OverlayPolicy decides how user selected sections are accounted for.
type OverlayPolicy int

const (
	// OverlayMove counts a selected section once, in USER_SELECTED, and
	// removes it from the bucket the scheme would have put it in.
	OverlayMove OverlayPolicy = iota
	// OverlayDuplicate keeps the scheme group and reports the section a
	// second time in the USER_SELECTED overlay.
	OverlayDuplicate
)

func (p OverlayPolicy) String() string {
	if p == OverlayDuplicate {
		return "duplicate"
	}
	return "move"
}

func ParseOverlayPolicy(s string) (OverlayPolicy, error) {
	switch strings.ToLower(s) {
	case "", "move":
		return OverlayMove, nil
	case "duplicate":
		return OverlayDuplicate, nil
	}
	return 0, fmt.Errorf("unknown overlay policy %q, expected move or duplicate", s)
}

// Pattern assigns every section whose name matches Regexp to Group.
type Pattern struct {
	Group  string
	Regexp *regexp.Regexp
}

func NewPattern(group, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern for group %s: %w", group, err)
	}
	return Pattern{Group: group, Regexp: re}, nil
}

// Rules are the user supplied adjustments applied on top of a scheme.
type Rules struct {
	// Overrides maps a section name to a group and wins over everything.
	Overrides map[string]string
	// Patterns are tried in order after Overrides.
	Patterns []Pattern
	// Exclude forces a section into EXCLUDE.
	Exclude map[string]struct{}
	// Selected names the user selected sections. Under the custom scheme
	// each becomes its own group, under the other schemes they form the
	// USER_SELECTED overlay.
	Selected map[string]struct{}
	Overlay  OverlayPolicy
	// SysVVerbatim keeps raw section names as sysv groups.
	SysVVerbatim bool
}

// NameSet builds a set from names, ignoring empty entries.
func NameSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Assignment is the outcome of classifying one section.
type Assignment struct {
	Group string
	// Overlay is set when the section is also accounted for in a parallel
	// overlay group.
	Overlay string
}

// Classifier assigns sections to groups under one scheme.
type Classifier interface {
	Scheme() Scheme
	Classify(s elfio.Section, m layout.Mapping) Assignment
}

type classifier struct {
	scheme Scheme
	rules  Rules
	group  func(elfio.Section, layout.Mapping) string
}

// New returns the classifier of scheme. It is the only place where the
// scheme specific logic is selected.
func New(scheme Scheme, rules Rules) (Classifier, error) {
	c := &classifier{scheme: scheme, rules: rules}
	switch scheme {
	case Berkeley:
		c.group = berkeleyGroup
	case GNU:
		c.group = gnuGroup
	case SysV:
		c.group = func(s elfio.Section, _ layout.Mapping) string {
			return sysvGroup(s.Name, rules.SysVVerbatim)
		}
	case Custom:
		c.group = func(s elfio.Section, _ layout.Mapping) string {
			if _, ok := rules.Selected[s.Name]; ok {
				return s.Name
			}
			return GroupOthers
		}
	default:
		return nil, fmt.Errorf("unknown scheme %d", int(scheme))
	}
	return c, nil
}

func (c *classifier) Scheme() Scheme { return c.scheme }

func (c *classifier) Classify(s elfio.Section, m layout.Mapping) Assignment {
	if g, ok := c.rules.Overrides[s.Name]; ok {
		return Assignment{Group: g}
	}
	for _, p := range c.rules.Patterns {
		if p.Regexp.MatchString(s.Name) {
			return Assignment{Group: p.Group}
		}
	}

	_, selected := c.rules.Selected[s.Name]
	selected = selected && c.scheme != Custom
	_, excluded := c.rules.Exclude[s.Name]
	if selected && !excluded && c.rules.Overlay == OverlayMove {
		return Assignment{Group: GroupUserSelected}
	}

	a := Assignment{Group: GroupExclude}
	if !excluded {
		a.Group = c.group(s, m)
	}
	if a.Group == "" {
		a.Group = GroupOthers
	}
	if selected {
		a.Overlay = GroupUserSelected
	}
	return a
}

// berkeley follows the permissions of the owning load segment, the way
// size(1) -B does.
func berkeleyGroup(s elfio.Section, m layout.Mapping) string {
	if !m.InLoad {
		return GroupOthers
	}
	switch {
	case m.SegmentFlags.Exec():
		return GroupText
	case m.SegmentFlags.Write():
		if s.IsNoBits() {
			return GroupBSS
		}
		return GroupData
	default:
		// read-only data is merged into text
		return GroupText
	}
}

// gnu only looks at the section's own flags.
func gnuGroup(s elfio.Section, _ layout.Mapping) string {
	switch {
	case s.Flags.Exec():
		return GroupText
	case s.Flags.Alloc() && s.Flags.Write():
		if s.IsNoBits() {
			return GroupBSS
		}
		return GroupData
	case s.Flags.Alloc():
		return GroupROData
	default:
		return GroupOthers
	}
}

func sysvGroup(name string, verbatim bool) string {
	switch {
	case strings.HasPrefix(name, ".gnu.warning"):
		return GroupWarnings
	case name == ".stab", name == ".stabstr", name == ".comment":
		return GroupDebugMeta
	case verbatim:
		return name
	}
	clean := strings.ToUpper(strings.TrimPrefix(name, "."))
	if clean == "" {
		return GroupOthers
	}
	return clean
}
