package diff

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type SortKey int

const (
	SortDelta SortKey = iota
	SortAbsDelta
	SortPct
	SortAbsPct
)

func (k SortKey) String() string {
	switch k {
	case SortAbsDelta:
		return "abs_diff"
	case SortPct:
		return "diff_pct"
	case SortAbsPct:
		return "abs_diff_pct"
	default:
		return "diff"
	}
}

type Order int

const (
	Desc Order = iota
	Asc
)

func (o Order) String() string {
	if o == Asc {
		return "asc"
	}
	return "desc"
}

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "desc":
		return Desc, nil
	case "asc":
		return Asc, nil
	}
	return Desc, fmt.Errorf("invalid order %q, expected asc or desc", s)
}

// Sign restricts a ranking to growing or shrinking items.
type Sign int

const (
	SignAny Sign = iota
	// SignGrowth keeps items with a delta >= 0.
	SignGrowth
	// SignShrink keeps items with a delta <= 0.
	SignShrink
)

func (s Sign) prefix() string {
	switch s {
	case SignGrowth:
		return "+"
	case SignShrink:
		return "-"
	}
	return ""
}

// Rankable is implemented by GroupDelta and FileDelta.
type Rankable interface {
	RankName() string
	RankDelta() int64
	RankPct() float64
}

type RankOptions struct {
	Key   SortKey
	Order Order
	Sign  Sign
	// Limit caps the number of items returned. Zero or less returns all.
	Limit int
}

func (o RankOptions) String() string {
	return o.Sign.prefix() + o.Key.String()
}

// score is the value items are ranked by. Under SignShrink the signed keys
// are negated so that the largest shrink ranks first in descending order.
func (o RankOptions) score(item Rankable) float64 {
	var v float64
	switch o.Key {
	case SortDelta:
		v = float64(item.RankDelta())
	case SortAbsDelta:
		v = math.Abs(float64(item.RankDelta()))
	case SortPct:
		v = item.RankPct()
	case SortAbsPct:
		v = math.Abs(item.RankPct())
	}
	if o.Sign == SignShrink && (o.Key == SortDelta || o.Key == SortPct) {
		v = -v
	}
	return v
}

func (o RankOptions) keep(item Rankable) bool {
	switch o.Sign {
	case SignGrowth:
		return item.RankDelta() >= 0
	case SignShrink:
		return item.RankDelta() <= 0
	}
	return true
}

// Rank filters, sorts and truncates items according to opts. Ties are broken
// by ascending name whatever the order. items is not modified.
func Rank[T Rankable](items []T, opts RankOptions) []T {
	res := make([]T, 0, len(items))
	for _, it := range items {
		if opts.keep(it) {
			res = append(res, it)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		si, sj := opts.score(res[i]), opts.score(res[j])
		if si != sj {
			if opts.Order == Asc {
				return si < sj
			}
			return si > sj
		}
		return res[i].RankName() < res[j].RankName()
	})
	if opts.Limit > 0 && len(res) > opts.Limit {
		res = res[:opts.Limit]
	}
	return res
}

// SortSpec is a parsed sort option such as "TEXT,DATA:+-diff_pct".
type SortSpec struct {
	// Groups restricts the ranking to the named groups. Empty means all.
	Groups []string
	// Views holds one ranking, or two for paired specs like "+-diff".
	Views []RankOptions
}

// Filter keeps the group deltas named by the spec.
func (s SortSpec) Filter(groups []GroupDelta) []GroupDelta {
	if len(s.Groups) == 0 {
		return groups
	}
	allowed := make(map[string]struct{}, len(s.Groups))
	for _, g := range s.Groups {
		allowed[g] = struct{}{}
	}
	res := make([]GroupDelta, 0, len(groups))
	for _, g := range groups {
		if _, ok := allowed[g.Group]; ok {
			res = append(res, g)
		}
	}
	return res
}

var sortMetrics = map[string]SortKey{
	"diff":         SortDelta,
	"abs_diff":     SortAbsDelta,
	"diff_pct":     SortPct,
	"abs_diff_pct": SortAbsPct,
	"perc":         SortPct,
	"abs_perc":     SortAbsPct,
}

// ParseSortSpec parses "[GROUP,...:]SPEC" where SPEC is a metric (diff,
// abs_diff, diff_pct, abs_diff_pct) optionally prefixed with one sign, or
// with two signs to get two views. order applies to every view.
func ParseSortSpec(s string, order Order) (SortSpec, error) {
	var spec SortSpec
	if groups, rest, ok := strings.Cut(s, ":"); ok {
		for _, g := range strings.Split(groups, ",") {
			if g = strings.TrimSpace(g); g != "" {
				spec.Groups = append(spec.Groups, g)
			}
		}
		s = rest
	}
	s = strings.TrimSpace(s)

	var signs []Sign
	for len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		if s[0] == '+' {
			signs = append(signs, SignGrowth)
		} else {
			signs = append(signs, SignShrink)
		}
		s = s[1:]
	}
	if len(signs) > 2 {
		return SortSpec{}, fmt.Errorf("invalid sort spec: too many signs")
	}
	key, ok := sortMetrics[s]
	if !ok {
		return SortSpec{}, fmt.Errorf("invalid sort metric %q", s)
	}
	if len(signs) > 0 && (key == SortAbsDelta || key == SortAbsPct) {
		return SortSpec{}, fmt.Errorf("absolute metric %q does not take a sign", s)
	}
	if len(signs) == 0 {
		signs = []Sign{SignAny}
	}
	for _, sign := range signs {
		spec.Views = append(spec.Views, RankOptions{Key: key, Order: order, Sign: sign})
	}
	return spec, nil
}
