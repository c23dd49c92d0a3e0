package main

import (
	"context"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/config"
	"github.com/grafana/elfdiff/pkg/diff"
	"github.com/grafana/elfdiff/pkg/elfcontext"
	"github.com/grafana/elfdiff/pkg/scan"
	"github.com/grafana/elfdiff/pkg/summary"
)

const (
	outputConsole = "console"
	outputJSON    = "json"
)

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

// analysisParams select how sections are grouped. Empty values fall back to
// the config file.
type analysisParams struct {
	scheme       string
	exclude      string
	include      string
	selected     string
	overlay      string
	sysvVerbatim bool
	commonFiles  bool
}

func addAnalysisParams(cmd commander) *analysisParams {
	p := &analysisParams{}
	cmd.Flag("scheme", "Grouping scheme: berkeley, gnu, sysv, custom or all. A comma separated list is accepted.").Envar(envPrefix + "SCHEME").StringVar(&p.scheme)
	cmd.Flag("exclude-sections", "Comma separated section names accounted in the EXCLUDE group.").StringVar(&p.exclude)
	cmd.Flag("include-sections", "Comma separated section names to keep, all others are ignored.").StringVar(&p.include)
	cmd.Flag("select-sections", "Comma separated section names forming the USER_SELECTED overlay, or the groups of the custom scheme.").StringVar(&p.selected)
	cmd.Flag("overlay", "How selected sections are accounted: move or duplicate.").StringVar(&p.overlay)
	cmd.Flag("sysv-verbatim", "Use raw section names as sysv groups.").Default("false").BoolVar(&p.sysvVerbatim)
	cmd.Flag("common-files", "Only compare binaries present and parseable in both trees.").Default("true").BoolVar(&p.commonFiles)
	return p
}

type analysis struct {
	schemes     []classify.Scheme
	rules       classify.Rules
	filter      summary.Filter
	commonFiles bool
}

func (p *analysisParams) resolve(c *config.Config) (*analysis, error) {
	merged := *c
	if p.scheme != "" {
		merged.Scheme = p.scheme
	}
	if p.overlay != "" {
		merged.Overlay = p.overlay
	}
	if p.exclude != "" {
		merged.Sections.Exclude = config.SplitList(p.exclude)
	}
	if p.include != "" {
		merged.Sections.Include = config.SplitList(p.include)
	}
	if p.selected != "" {
		merged.Sections.Select = config.SplitList(p.selected)
	}
	merged.SysVVerbatim = merged.SysVVerbatim || p.sysvVerbatim
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	schemes, err := merged.Schemes()
	if err != nil {
		return nil, err
	}
	rules, err := merged.Rules()
	if err != nil {
		return nil, err
	}
	common := p.commonFiles
	if merged.CommonFiles != nil {
		common = common && *merged.CommonFiles
	}
	return &analysis{
		schemes:     schemes,
		rules:       rules,
		filter:      merged.Filter(),
		commonFiles: common,
	}, nil
}

func (a *analysis) options(allow map[string]struct{}) scan.Options {
	return scan.Options{
		Schemes:   a.schemes,
		Rules:     a.rules,
		Filter:    a.filter,
		AllowList: allow,
	}
}

type reportParams struct {
	sortGroupBy string
	sortFileBy  string
	order       string
	topNGroups  int
	topNFiles   int
	readable    bool
	output      string
}

func addReportParams(cmd commander) *reportParams {
	p := &reportParams{}
	cmd.Flag("sort-group-by", "Group ranking, e.g. +-diff or TEXT,DATA:abs_diff_pct.").StringVar(&p.sortGroupBy)
	cmd.Flag("sort-file-by", "File ranking within each group, same syntax as --sort-group-by.").StringVar(&p.sortFileBy)
	cmd.Flag("order", "Ranking order: desc or asc.").StringVar(&p.order)
	cmd.Flag("top-n-groups", "Number of groups listed per ranking, 0 uses the config.").Default("0").IntVar(&p.topNGroups)
	cmd.Flag("top-n-files", "Number of files listed per ranking, 0 uses the config.").Default("0").IntVar(&p.topNFiles)
	cmd.Flag("readable", "Print sizes in human readable units.").Default("false").BoolVar(&p.readable)
	cmd.Flag("output", "How to output the result: console or json.").Default(outputConsole).EnumVar(&p.output, outputConsole, outputJSON)
	return p
}

type report struct {
	groups   diff.SortSpec
	files    diff.SortSpec
	topN     int
	topFiles int
	readable bool
	output   string
}

func (p *reportParams) resolve(c *config.Config) (*report, error) {
	s := c.Sort
	if p.sortGroupBy != "" {
		s.Groups = p.sortGroupBy
	}
	if p.sortFileBy != "" {
		s.Files = p.sortFileBy
	}
	if p.order != "" {
		s.Order = p.order
	}
	if p.topNGroups > 0 {
		s.TopNGroups = p.topNGroups
	}
	if p.topNFiles > 0 {
		s.TopNFiles = p.topNFiles
	}

	order, err := diff.ParseOrder(s.Order)
	if err != nil {
		return nil, errors.Wrap(err, "--order")
	}
	groups, err := diff.ParseSortSpec(s.Groups, order)
	if err != nil {
		return nil, errors.Wrap(err, "--sort-group-by")
	}
	files, err := diff.ParseSortSpec(s.Files, order)
	if err != nil {
		return nil, errors.Wrap(err, "--sort-file-by")
	}
	return &report{
		groups:   groups,
		files:    files,
		topN:     s.TopNGroups,
		topFiles: s.TopNFiles,
		readable: p.readable,
		output:   p.output,
	}, nil
}

func loadConfig() (*config.Config, error) {
	if cfg.config.file == "" {
		return config.Default(), nil
	}
	c, err := config.Load(fsys, cfg.config.file, cfg.config.expandEnv)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", cfg.config.file)
	}
	return c, nil
}

func newAggregator(ctx context.Context, c *config.Config) (*scan.Aggregator, error) {
	sc := scan.Config{Concurrency: c.Concurrency, CacheSize: c.CacheSize}
	if cfg.concurrency > 0 {
		sc.Concurrency = cfg.concurrency
	}
	return scan.New(sc, fsys, elfcontext.Logger(ctx), elfcontext.Registry(ctx))
}
