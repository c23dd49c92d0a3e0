package summary

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/elfio/elftest"
)

func openSimple(t *testing.T, text, data, bss uint64) *elfio.File {
	t.Helper()
	img := elftest.Simple(text, data, bss)
	f, err := elfio.NewFile(img.Reader(), int64(len(img.Bytes())))
	require.NoError(t, err)
	return f
}

func mustClassifier(t *testing.T, scheme classify.Scheme, rules classify.Rules) classify.Classifier {
	t.Helper()
	c, err := classify.New(scheme, rules)
	require.NoError(t, err)
	return c
}

func TestSummarizeBerkeley(t *testing.T) {
	f := openSimple(t, 100, 200, 50)
	rules := classify.NewRuleTable(classify.Berkeley)
	b := Summarize(f, mustClassifier(t, classify.Berkeley, classify.Rules{}), Filter{}, rules)

	totals := b.Totals()
	assert.Equal(t, uint64(100), totals[classify.GroupText])
	assert.Equal(t, uint64(200), totals[classify.GroupData])
	assert.Equal(t, uint64(50), totals[classify.GroupBSS])
	assert.Contains(t, b.Groups[classify.GroupOthers], ".comment")
	// the null section is present with size zero
	assert.Contains(t, b.Groups[classify.GroupOthers], "null0")
	assert.Equal(t, uint64(0x4000), b.LoadSize)
	assert.Equal(t, uint64(f.Size), b.FileSize)
	assert.Empty(t, b.OverlayTotals())

	groups := rules.Groups()
	require.NotEmpty(t, groups)
}

func TestSummarizeFilter(t *testing.T) {
	f := openSimple(t, 100, 200, 50)
	c := mustClassifier(t, classify.GNU, classify.Rules{})

	b := Summarize(f, c, Filter{Include: classify.NameSet(".text", ".data")}, nil)
	assert.Equal(t, map[string]uint64{classify.GroupText: 100, classify.GroupData: 200}, b.Totals())
	assert.Equal(t, uint64(300), b.Total())

	b = Summarize(f, c, Filter{Exclude: classify.NameSet(".data")}, nil)
	assert.NotContains(t, b.Totals(), classify.GroupData)
}

func TestSummarizeOverlay(t *testing.T) {
	f := openSimple(t, 100, 200, 50)

	b := Summarize(f, mustClassifier(t, classify.GNU, classify.Rules{Selected: classify.NameSet(".data")}), Filter{}, nil)
	assert.NotContains(t, b.Totals(), classify.GroupData)
	assert.Equal(t, uint64(200), b.Totals()[classify.GroupUserSelected])

	b = Summarize(f, mustClassifier(t, classify.GNU, classify.Rules{
		Selected: classify.NameSet(".data"),
		Overlay:  classify.OverlayDuplicate,
	}), Filter{}, nil)
	assert.Equal(t, uint64(200), b.Totals()[classify.GroupData])
	assert.Equal(t, map[string]uint64{classify.GroupUserSelected: 200}, b.OverlayTotals())
}

func TestSummarizeDuplicateNames(t *testing.T) {
	f := &elfio.File{
		Sections: []elfio.Section{
			{Index: 1, Name: ".text", Type: elfio.SHTProgBits, Size: 10, Flags: elfio.SHFAlloc | elfio.SHFExecInstr},
			{Index: 2, Name: ".text", Type: elfio.SHTProgBits, Size: 32, Flags: elfio.SHFAlloc | elfio.SHFExecInstr},
		},
	}
	b := Summarize(f, mustClassifier(t, classify.GNU, classify.Rules{}), Filter{}, nil)
	assert.Equal(t, uint64(42), b.Groups[classify.GroupText][".text"].Size)
}

func TestTreeSummary(t *testing.T) {
	c := mustClassifier(t, classify.Berkeley, classify.Rules{})

	a := NewTreeSummary(classify.Berkeley)
	a.Add("lib/a.so", Summarize(openSimple(t, 100, 200, 50), c, Filter{}, nil))
	b := NewTreeSummary(classify.Berkeley)
	b.Add("bin/b", Summarize(openSimple(t, 10, 20, 5), c, Filter{}, nil))

	ab := NewTreeSummary(classify.Berkeley)
	require.NoError(t, ab.Merge(a))
	require.NoError(t, ab.Merge(b))
	ba := NewTreeSummary(classify.Berkeley)
	require.NoError(t, ba.Merge(b))
	require.NoError(t, ba.Merge(a))
	assert.Empty(t, cmp.Diff(ab, ba))

	assert.Equal(t, uint64(110), ab.Totals[classify.GroupText])
	assert.Equal(t, map[string]uint64{"lib/a.so": 200, "bin/b": 20}, ab.Files[classify.GroupData])
	assert.Equal(t, []string{"bin/b", "lib/a.so"}, ab.FileNames())
	assert.Contains(t, ab.Groups(), classify.GroupBSS)

	dirs := ab.DirTotals()
	assert.Equal(t, uint64(100), dirs["lib"][classify.GroupText])
	assert.Equal(t, uint64(110), dirs["."][classify.GroupText])

	require.Error(t, ab.Merge(NewTreeSummary(classify.GNU)))
}

func TestStats(t *testing.T) {
	s := Stats{Scanned: 3, Classified: 1, NotBinary: 1, Filtered: 1}
	s.Merge(Stats{Scanned: 2, Classified: 1, Failed: 1})
	assert.Equal(t, 3, s.Skipped())
	assert.Equal(t, s.Scanned, s.Classified+s.Skipped())
	assert.Equal(t, "5 files scanned / 2 classified / 3 skipped (not binary: 1, filtered: 1, failed: 1)", s.String())
}
