package diff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/summary"
)

func tree(files map[string]map[string]uint64) *summary.TreeSummary {
	t := summary.NewTreeSummary(classify.GNU)
	for file, groups := range files {
		b := summary.NewBinarySummary()
		for g, size := range groups {
			b.Groups[g] = map[string]summary.Entry{"." + g: {Size: size}}
		}
		b.LoadSize = groups[classify.GroupText] + groups[classify.GroupData]
		t.Add(file, b)
	}
	return t
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 25.0, Percent(200, 250))
	assert.Equal(t, -100.0, Percent(200, 0))
	assert.Equal(t, 100.0, Percent(0, 500))
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(7, 7))
}

func TestComputeDataGrowth(t *testing.T) {
	old := tree(map[string]map[string]uint64{"lib.so": {classify.GroupData: 200}})
	new := tree(map[string]map[string]uint64{"lib.so": {classify.GroupData: 250}})

	r := Compute(old, new)
	data, ok := r.Group(classify.GroupData)
	require.True(t, ok)
	assert.Equal(t, GroupDelta{Group: classify.GroupData, Old: 200, New: 250, Delta: 50, Pct: 25}, data)

	files := r.Files[classify.GroupData]
	require.Len(t, files, 1)
	assert.Equal(t, StatusCommon, files[0].Status)
	assert.Equal(t, ".", files[0].Dir)
	assert.Equal(t, "lib.so", files[0].Name)
}

func TestComputeAddedRemoved(t *testing.T) {
	old := tree(map[string]map[string]uint64{
		"bin/app":    {classify.GroupText: 1000},
		"bin/legacy": {classify.GroupText: 300},
	})
	new := tree(map[string]map[string]uint64{
		"bin/app":    {classify.GroupText: 1000, classify.GroupBSS: 10},
		"lib/new.so": {classify.GroupText: 500},
	})
	r := Compute(old, new)

	byPath := map[string]FileDelta{}
	for _, f := range r.Files[classify.GroupText] {
		byPath[f.Path] = f
	}
	added := byPath["lib/new.so"]
	assert.Equal(t, StatusAdded, added.Status)
	assert.Equal(t, int64(500), added.Delta)
	assert.Equal(t, 100.0, added.Pct)
	assert.Equal(t, "lib", added.Dir)

	removed := byPath["bin/legacy"]
	assert.Equal(t, StatusRemoved, removed.Status)
	assert.Equal(t, int64(-300), removed.Delta)
	assert.Equal(t, -100.0, removed.Pct)

	// the file exists on both sides, only the group is new
	bss := r.Files[classify.GroupBSS]
	require.Len(t, bss, 1)
	assert.Equal(t, StatusCommon, bss[0].Status)
	assert.Equal(t, 100.0, bss[0].Pct)

	assert.Equal(t, []string{classify.GroupBSS, classify.GroupText}, []string{r.Groups[0].Group, r.Groups[1].Group})
	require.Len(t, r.LoadDeltas, 3)
	assert.Equal(t, "bin/app", r.LoadDeltas[0].Path)
	assert.Equal(t, GroupDelta{Group: "TOTAL", Old: 1300, New: 1500, Delta: 200, Pct: Percent(1300, 1500)}, r.LoadTotals())
}

func TestComputeOneSidedZeroSize(t *testing.T) {
	old := tree(map[string]map[string]uint64{
		"gone.so": {classify.GroupBSS: 0},
	})
	new := tree(map[string]map[string]uint64{
		"new.so": {classify.GroupBSS: 0},
	})
	files := Compute(old, new).Files[classify.GroupBSS]
	require.Len(t, files, 2)

	assert.Equal(t, "gone.so", files[0].Path)
	assert.Equal(t, StatusRemoved, files[0].Status)
	assert.Equal(t, int64(0), files[0].Delta)
	assert.Equal(t, -100.0, files[0].Pct)

	assert.Equal(t, "new.so", files[1].Path)
	assert.Equal(t, StatusAdded, files[1].Status)
	assert.Equal(t, int64(0), files[1].Delta)
	assert.Equal(t, 100.0, files[1].Pct)
}

func TestFileSizeTotals(t *testing.T) {
	sized := func(files map[string]uint64) *summary.TreeSummary {
		t := summary.NewTreeSummary(classify.GNU)
		for f, size := range files {
			b := summary.NewBinarySummary()
			b.FileSize = size
			t.Add(f, b)
		}
		return t
	}
	old := sized(map[string]uint64{"bin/app": 1000, "bin/legacy": 300})
	new := sized(map[string]uint64{"bin/app": 1200, "lib/new.so": 500, "lib/other.so": 50})

	r := Compute(old, new)
	require.Len(t, r.FileSizeDeltas, 4)
	assert.Equal(t, []GroupDelta{
		{Group: "common", Old: 1000, New: 1200, Delta: 200, Pct: 20},
		{Group: "added", Old: 0, New: 550, Delta: 550, Pct: 100},
		{Group: "removed", Old: 300, New: 0, Delta: -300, Pct: -100},
	}, r.FileSizeTotals())
}

func TestComputeZeroGroup(t *testing.T) {
	old := tree(map[string]map[string]uint64{"a": {classify.GroupROData: 0}})
	new := tree(map[string]map[string]uint64{"a": {classify.GroupROData: 0}})
	g, ok := Compute(old, new).Group(classify.GroupROData)
	require.True(t, ok)
	assert.Equal(t, 0.0, g.Pct)
	assert.Equal(t, int64(0), g.Delta)
}

func TestComputeOverlay(t *testing.T) {
	old := summary.NewTreeSummary(classify.GNU)
	new := summary.NewTreeSummary(classify.GNU)
	b := summary.NewBinarySummary()
	b.Overlay[classify.GroupUserSelected] = map[string]summary.Entry{".data": {Size: 10}}
	new.Add("x", b)

	r := Compute(old, new)
	require.Len(t, r.Overlay, 1)
	assert.Equal(t, int64(10), r.Overlay[0].Delta)
	assert.Equal(t, StatusAdded, r.OverlayFiles[classify.GroupUserSelected][0].Status)
}

func TestDeltaConservation(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	groups := []string{classify.GroupText, classify.GroupData, classify.GroupBSS, classify.GroupOthers}
	random := func() *summary.TreeSummary {
		files := map[string]map[string]uint64{}
		for i := 0; i < 20; i++ {
			if rnd.Intn(3) == 0 {
				continue
			}
			name := string(rune('a' + i))
			files[name] = map[string]uint64{}
			for _, g := range groups {
				if rnd.Intn(2) == 0 {
					files[name][g] = uint64(rnd.Intn(1 << 20))
				}
			}
		}
		return tree(files)
	}
	for i := 0; i < 200; i++ {
		old, new := random(), random()
		r := Compute(old, new)
		var sum int64
		for _, g := range r.Groups {
			require.Equal(t, int64(g.New)-int64(g.Old), g.Delta)
			sum += g.Delta
			var fileSum int64
			for _, f := range r.Files[g.Group] {
				fileSum += f.Delta
			}
			require.Equal(t, g.Delta, fileSum)
		}
		require.Equal(t, int64(new.Total())-int64(old.Total()), sum)
		require.Equal(t, sum, r.Totals().Delta)
	}
}
