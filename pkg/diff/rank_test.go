package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var groups = []GroupDelta{
	newGroupDelta("TEXT", 1000, 1200),
	newGroupDelta("DATA", 200, 100),
	newGroupDelta("BSS", 0, 50),
	newGroupDelta("OTHERS", 10, 10),
	newGroupDelta("RODATA", 400, 200),
}

func names(ds []GroupDelta) []string {
	res := make([]string, 0, len(ds))
	for _, d := range ds {
		res = append(res, d.Group)
	}
	return res
}

func TestRank(t *testing.T) {
	tests := []struct {
		name string
		opts RankOptions
		want []string
	}{
		{name: "abs delta", opts: RankOptions{Key: SortAbsDelta}, want: []string{"RODATA", "TEXT", "DATA", "BSS", "OTHERS"}},
		{name: "delta asc", opts: RankOptions{Key: SortDelta, Order: Asc}, want: []string{"RODATA", "DATA", "OTHERS", "BSS", "TEXT"}},
		{name: "growth", opts: RankOptions{Key: SortDelta, Sign: SignGrowth}, want: []string{"TEXT", "BSS", "OTHERS"}},
		{name: "shrink", opts: RankOptions{Key: SortDelta, Sign: SignShrink}, want: []string{"RODATA", "DATA", "OTHERS"}},
		{name: "pct", opts: RankOptions{Key: SortPct}, want: []string{"BSS", "TEXT", "OTHERS", "DATA", "RODATA"}},
		// DATA and RODATA both shrank by 50%, the tie is broken by name
		{name: "abs pct", opts: RankOptions{Key: SortAbsPct}, want: []string{"BSS", "DATA", "RODATA", "TEXT", "OTHERS"}},
		{name: "abs pct asc", opts: RankOptions{Key: SortAbsPct, Order: Asc}, want: []string{"OTHERS", "TEXT", "DATA", "RODATA", "BSS"}},
		{name: "limit", opts: RankOptions{Key: SortAbsDelta, Limit: 2}, want: []string{"RODATA", "TEXT"}},
		{name: "no limit", opts: RankOptions{Key: SortAbsDelta, Limit: -1}, want: []string{"RODATA", "TEXT", "DATA", "BSS", "OTHERS"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Rank(groups, tt.opts)))
		})
	}
}

func TestRankTieBreakByName(t *testing.T) {
	files := []FileDelta{
		{Path: "b", Delta: 5},
		{Path: "c", Delta: -5},
		{Path: "a", Delta: 5},
	}
	got := Rank(files, RankOptions{Key: SortAbsDelta})
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Path, got[1].Path, got[2].Path})
	got = Rank(files, RankOptions{Key: SortAbsDelta, Order: Asc})
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Path, got[1].Path, got[2].Path})
	// the input is left untouched
	assert.Equal(t, "b", files[0].Path)
}

func TestParseSortSpec(t *testing.T) {
	spec, err := ParseSortSpec("TEXT, DATA:+-diff_pct", Desc)
	require.NoError(t, err)
	assert.Equal(t, []string{"TEXT", "DATA"}, spec.Groups)
	assert.Equal(t, []RankOptions{
		{Key: SortPct, Sign: SignGrowth},
		{Key: SortPct, Sign: SignShrink},
	}, spec.Views)
	assert.Equal(t, "+diff_pct", spec.Views[0].String())
	assert.Equal(t, []string{"TEXT", "DATA"}, names(spec.Filter(groups)))

	spec, err = ParseSortSpec("abs_diff", Asc)
	require.NoError(t, err)
	assert.Empty(t, spec.Groups)
	assert.Equal(t, []RankOptions{{Key: SortAbsDelta, Order: Asc}}, spec.Views)
	assert.Len(t, spec.Filter(groups), len(groups))

	spec, err = ParseSortSpec("--diff", Desc)
	require.NoError(t, err)
	require.Len(t, spec.Views, 2)

	for _, bad := range []string{"+++diff", "size", "+abs_diff", ""} {
		_, err := ParseSortSpec(bad, Desc)
		require.Error(t, err, bad)
	}

	_, err = ParseOrder("sideways")
	require.Error(t, err)
}
