package layout

import "fmt"

// Range is a half-open interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) Empty() bool { return r.Start >= r.End }

func (r Range) Len() uint64 {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Intersect returns [max(starts), min(ends)). The result is only meaningful
// when ok is true, which is the case iff max(starts) < min(ends).
func (r Range) Intersect(o Range) (Range, bool) {
	res := Range{Start: max(r.Start, o.Start), End: min(r.End, o.End)}
	if res.Start < res.End {
		return res, true
	}
	return Range{}, false
}

// String renders an address range, "0x1000-0x1064". Empty ranges render as
// an empty string.
func (r Range) String() string {
	if r.Empty() {
		return ""
	}
	return fmt.Sprintf("0x%x-0x%x", r.Start, r.End)
}

// FileString renders a file offset range in decimal, "4096-4196".
func (r Range) FileString() string {
	if r.Empty() {
		return ""
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParseRange reads the String form back. An empty string is an empty range.
func ParseRange(s string) (Range, error) {
	if s == "" {
		return Range{}, nil
	}
	var r Range
	if _, err := fmt.Sscanf(s, "0x%x-0x%x", &r.Start, &r.End); err == nil {
		return r, nil
	}
	if _, err := fmt.Sscanf(s, "%d-%d", &r.Start, &r.End); err != nil {
		return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	return r, nil
}
