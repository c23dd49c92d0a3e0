package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/grafana/elfdiff/pkg/classify"
)

type rulesParams struct {
	analysis *analysisParams
	dir      string
}

func addRulesParams(cmd commander) *rulesParams {
	p := &rulesParams{analysis: addAnalysisParams(cmd)}
	cmd.Arg("dir", "The tree to classify.").Required().StringVar(&p.dir)
	return p
}

func runRules(ctx context.Context, p *rulesParams) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	an, err := p.analysis.resolve(c)
	if err != nil {
		return err
	}
	a, err := newAggregator(ctx, c)
	if err != nil {
		return err
	}
	stop := startProgress(a)
	rc, err := a.Run(ctx, p.dir, an.options(nil))
	stop()
	if err != nil {
		return errors.Wrapf(err, "scanning %s", p.dir)
	}

	out := output(ctx)
	for _, s := range an.schemes {
		fmt.Fprintf(out, "== scheme %s ==\n", s)
		writeRuleTable(out, rc.Rules[s])
	}
	writeStats(out, "tree", rc.Stats)
	return nil
}

func writeRuleTable(out io.Writer, t *classify.RuleTable) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Group", "Sections", "Types", "Segment perms", "Section flags", "Mapped", "Unmapped"})
	table.SetAutoWrapText(false)
	for _, e := range t.Groups() {
		table.Append([]string{
			e.Group,
			strings.Join(e.SectionNames(), " "),
			strings.Join(e.TypeNames(), " "),
			strings.Join(e.SegmentPerms(), " "),
			strings.Join(e.SectionFlagsHex(), " "),
			strconv.Itoa(e.Mapped),
			strconv.Itoa(e.Unmapped),
		})
	}
	table.Render()
}
