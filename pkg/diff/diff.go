package diff

import (
	"path"
	"sort"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/summary"
)

// Percent is the relative change from old to new, in percent. A group that
// did not exist before counts as +100% and nothing to nothing as 0%.
func Percent(old, new uint64) float64 {
	delta := float64(new) - float64(old)
	switch {
	case old != 0:
		return delta / float64(old) * 100
	case new > 0:
		return 100
	default:
		return 0
	}
}

type GroupDelta struct {
	Group string  `json:"group"`
	Old   uint64  `json:"old"`
	New   uint64  `json:"new"`
	Delta int64   `json:"delta"`
	Pct   float64 `json:"delta_pct"`
}

func newGroupDelta(group string, old, new uint64) GroupDelta {
	return GroupDelta{
		Group: group,
		Old:   old,
		New:   new,
		Delta: int64(new) - int64(old),
		Pct:   Percent(old, new),
	}
}

func (d GroupDelta) RankName() string { return d.Group }
func (d GroupDelta) RankDelta() int64 { return d.Delta }
func (d GroupDelta) RankPct() float64 { return d.Pct }

type Status string

const (
	StatusCommon  Status = "common"
	StatusAdded   Status = "added"
	StatusRemoved Status = "removed"
)

type FileDelta struct {
	Group  string  `json:"group,omitempty"`
	Path   string  `json:"path"`
	Dir    string  `json:"dir"`
	Name   string  `json:"name"`
	Status Status  `json:"status"`
	Old    uint64  `json:"old"`
	New    uint64  `json:"new"`
	Delta  int64   `json:"delta"`
	Pct    float64 `json:"delta_pct"`
}

func (d FileDelta) RankName() string { return d.Path }
func (d FileDelta) RankDelta() int64 { return d.Delta }
func (d FileDelta) RankPct() float64 { return d.Pct }

// Result is the difference between two summaries of the same scheme.
type Result struct {
	Scheme classify.Scheme `json:"-"`
	// Groups are sorted by name.
	Groups []GroupDelta `json:"groups"`
	// Files holds, per group, the file deltas sorted by path.
	Files        map[string][]FileDelta `json:"files"`
	Overlay      []GroupDelta           `json:"overlay,omitempty"`
	OverlayFiles map[string][]FileDelta `json:"overlay_files,omitempty"`
	// LoadDeltas compares the PT_LOAD memory size of every binary.
	LoadDeltas []FileDelta `json:"load_deltas"`
	// FileSizeDeltas compares the on disk size of every binary.
	FileSizeDeltas []FileDelta `json:"file_size_deltas"`
}

// Compute diffs old against new. Both must be summaries of the same scheme.
func Compute(old, new *summary.TreeSummary) *Result {
	inOld := nameSet(old.FileNames())
	inNew := nameSet(new.FileNames())

	r := &Result{
		Scheme:       new.Scheme,
		Groups:       groupDeltas(old.Totals, new.Totals),
		Files:        fileDeltas(old.Files, new.Files, inOld, inNew),
		Overlay:      groupDeltas(old.OverlayTotals, new.OverlayTotals),
		OverlayFiles: fileDeltas(old.OverlayFiles, new.OverlayFiles, inOld, inNew),
	}
	r.LoadDeltas = perFile("", old.LoadSizes, new.LoadSizes, inOld, inNew)
	r.FileSizeDeltas = perFile("", old.FileSizes, new.FileSizes, inOld, inNew)
	return r
}

// Totals sums every group. Overlay groups are not included.
func (r *Result) Totals() GroupDelta {
	var old, new uint64
	for _, g := range r.Groups {
		old += g.Old
		new += g.New
	}
	return newGroupDelta("TOTAL", old, new)
}

// LoadTotals sums the PT_LOAD memory size of every binary.
func (r *Result) LoadTotals() GroupDelta {
	var old, new uint64
	for _, d := range r.LoadDeltas {
		old += d.Old
		new += d.New
	}
	return newGroupDelta("TOTAL", old, new)
}

// FileSizeTotals sums the file sizes per status, so that the bytes of
// binaries only present in one tree are reported apart from the common ones.
// Every status is present, named after itself.
func (r *Result) FileSizeTotals() []GroupDelta {
	sums := make(map[Status][2]uint64, 3)
	for _, d := range r.FileSizeDeltas {
		s := sums[d.Status]
		s[0] += d.Old
		s[1] += d.New
		sums[d.Status] = s
	}
	res := make([]GroupDelta, 0, 3)
	for _, st := range []Status{StatusCommon, StatusAdded, StatusRemoved} {
		s := sums[st]
		res = append(res, newGroupDelta(string(st), s[0], s[1]))
	}
	return res
}

// Group returns the delta of group, if present on either side.
func (r *Result) Group(group string) (GroupDelta, bool) {
	i := sort.Search(len(r.Groups), func(i int) bool { return r.Groups[i].Group >= group })
	if i < len(r.Groups) && r.Groups[i].Group == group {
		return r.Groups[i], true
	}
	return GroupDelta{}, false
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func union[V any](a, b map[string]V) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func groupDeltas(old, new map[string]uint64) []GroupDelta {
	groups := union(old, new)
	res := make([]GroupDelta, 0, len(groups))
	for _, g := range groups {
		res = append(res, newGroupDelta(g, old[g], new[g]))
	}
	return res
}

func fileDeltas(old, new map[string]map[string]uint64, inOld, inNew map[string]struct{}) map[string][]FileDelta {
	res := make(map[string][]FileDelta)
	for _, g := range union(old, new) {
		res[g] = perFile(g, old[g], new[g], inOld, inNew)
	}
	return res
}

func perFile(group string, old, new map[string]uint64, inOld, inNew map[string]struct{}) []FileDelta {
	files := union(old, new)
	res := make([]FileDelta, 0, len(files))
	for _, f := range files {
		o, n := old[f], new[f]
		st := status(f, inOld, inNew)
		dir, name := path.Split(f)
		if dir == "" {
			dir = "."
		} else {
			dir = path.Clean(dir)
		}
		res = append(res, FileDelta{
			Group:  group,
			Path:   f,
			Dir:    dir,
			Name:   name,
			Status: st,
			Old:    o,
			New:    n,
			Delta:  int64(n) - int64(o),
			Pct:    filePercent(st, o, n),
		})
	}
	return res
}

// filePercent pins one sided files to -100% and +100%, whatever their size.
func filePercent(st Status, old, new uint64) float64 {
	switch st {
	case StatusAdded:
		return 100
	case StatusRemoved:
		return -100
	}
	return Percent(old, new)
}

func status(f string, inOld, inNew map[string]struct{}) Status {
	_, o := inOld[f]
	_, n := inNew[f]
	switch {
	case o && !n:
		return StatusRemoved
	case n && !o:
		return StatusAdded
	default:
		return StatusCommon
	}
}
