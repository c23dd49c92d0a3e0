package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/elfdiff/pkg/classify"
	"github.com/grafana/elfdiff/pkg/elfio"
	"github.com/grafana/elfdiff/pkg/summary"
	"github.com/grafana/elfdiff/pkg/util"
)

type Config struct {
	Concurrency util.ConcurrencyLimit
	// CacheSize is the number of parsed binaries kept in memory.
	CacheSize int
}

type Options struct {
	Schemes []classify.Scheme
	Rules   classify.Rules
	Filter  summary.Filter
	// AllowList restricts the summaries to the given relative paths. A nil
	// AllowList admits every file. Files outside of it are still parsed, so
	// that non binaries and malformed binaries are reported as such rather
	// than as filtered.
	AllowList map[string]struct{}
	// KeepFiles retains the parsed headers of every classified binary in
	// RunContext.Files.
	KeepFiles bool
}

// RunContext is the outcome of scanning one tree.
type RunContext struct {
	Root      string
	Summaries map[classify.Scheme]*summary.TreeSummary
	Rules     map[classify.Scheme]*classify.RuleTable
	Files     map[string]*elfio.File
	Stats     summary.Stats
	// Skipped collects the per-file failures. Files that are not binaries
	// are not reported here.
	Skipped error
}

// Aggregator walks directory trees and summarizes the binaries found.
type Aggregator struct {
	cfg     Config
	fs      afero.Fs
	logger  log.Logger
	metrics *metrics
	parser  *parser

	processed *atomic.Int64
}

func New(cfg Config, fs afero.Fs, logger log.Logger, reg prometheus.Registerer) (*Aggregator, error) {
	m := newMetrics(reg)
	p, err := newParser(fs, cfg.CacheSize, m)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		cfg:       cfg,
		fs:        fs,
		logger:    logger,
		metrics:   m,
		parser:    p,
		processed: atomic.NewInt64(0),
	}, nil
}

// WithLogger returns an Aggregator logging to logger. The parse cache and
// the metrics are shared with a.
func (a *Aggregator) WithLogger(logger log.Logger) *Aggregator {
	cp := *a
	cp.logger = logger
	return &cp
}

// Processed is the number of files handled by all runs so far.
func (a *Aggregator) Processed() int64 { return a.processed.Load() }

type fileStatus int

const (
	statusClassified fileStatus = iota
	statusNotBinary
	statusFiltered
	statusFailed
)

// fileResult is everything one file contributes. It is produced by a worker
// and folded by the reducer only, so a file contributes all or nothing.
type fileResult struct {
	path      string
	status    fileStatus
	err       error
	summaries map[classify.Scheme]*summary.BinarySummary
	rules     map[classify.Scheme]*classify.RuleTable
	sections  int
	file      *elfio.File
}

// Run scans the tree at root under every scheme of opts.
func (a *Aggregator) Run(ctx context.Context, root string, opts Options) (*RunContext, error) {
	if len(opts.Schemes) == 0 {
		return nil, errors.New("no scheme selected")
	}
	classifiers := make([]classify.Classifier, 0, len(opts.Schemes))
	for _, s := range opts.Schemes {
		c, err := classify.New(s, opts.Rules)
		if err != nil {
			return nil, err
		}
		classifiers = append(classifiers, c)
	}

	rc := &RunContext{
		Root:      root,
		Summaries: make(map[classify.Scheme]*summary.TreeSummary, len(opts.Schemes)),
		Rules:     make(map[classify.Scheme]*classify.RuleTable, len(opts.Schemes)),
	}
	if opts.KeepFiles {
		rc.Files = make(map[string]*elfio.File)
	}
	for _, s := range opts.Schemes {
		rc.Summaries[s] = summary.NewTreeSummary(s)
		rc.Rules[s] = classify.NewRuleTable(s)
	}

	files, walkErrs, err := Files(ctx, a.fs, root)
	if err != nil {
		return nil, err
	}
	for _, err := range walkErrs {
		rc.Stats.Scanned++
		a.fail(rc, err)
	}

	results := make(chan fileResult)
	reduced := make(chan struct{})
	go func() {
		defer close(reduced)
		for r := range results {
			a.reduce(rc, r)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency.Workers())
	for _, rel := range files {
		rc.Stats.Scanned++
		allowed := true
		if opts.AllowList != nil {
			_, allowed = opts.AllowList[rel]
		}
		g.Go(func() error {
			var r fileResult
			err := util.RecoverPanic(func() error {
				r = a.process(root, rel, allowed, classifiers, opts.Filter)
				return nil
			})()
			if err != nil {
				r = fileResult{path: rel, status: statusFailed, err: fmt.Errorf("%s: %w", rel, err)}
			}
			a.processed.Inc()
			select {
			case results <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err = g.Wait()
	close(results)
	<-reduced
	if err != nil {
		return nil, err
	}

	level.Info(a.logger).Log(
		"msg", "tree scanned",
		"root", root,
		"scanned", rc.Stats.Scanned,
		"classified", rc.Stats.Classified,
		"skipped", rc.Stats.Skipped(),
	)
	return rc, nil
}

func (a *Aggregator) process(root, rel string, allowed bool, classifiers []classify.Classifier, filter summary.Filter) fileResult {
	f, err := a.parser.parse(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, elfio.ErrNotBinary) {
			return fileResult{path: rel, status: statusNotBinary}
		}
		return fileResult{path: rel, status: statusFailed, err: err}
	}
	if !allowed {
		return fileResult{path: rel, status: statusFiltered}
	}
	r := fileResult{
		path:      rel,
		summaries: make(map[classify.Scheme]*summary.BinarySummary, len(classifiers)),
		rules:     make(map[classify.Scheme]*classify.RuleTable, len(classifiers)),
	}
	for _, c := range classifiers {
		rules := classify.NewRuleTable(c.Scheme())
		r.summaries[c.Scheme()] = summary.Summarize(f, c, filter, rules)
		r.rules[c.Scheme()] = rules
	}
	r.sections = len(f.Sections)
	r.file = f
	return r
}

func (a *Aggregator) reduce(rc *RunContext, r fileResult) {
	switch r.status {
	case statusNotBinary:
		rc.Stats.NotBinary++
		a.metrics.files.WithLabelValues(resultNotBinary).Inc()
		level.Debug(a.logger).Log("msg", "not a binary", "path", r.path)
	case statusFiltered:
		rc.Stats.Filtered++
		a.metrics.files.WithLabelValues(resultFiltered).Inc()
		level.Debug(a.logger).Log("msg", "not in allow list", "path", r.path)
	case statusFailed:
		a.fail(rc, r.err)
	default:
		rc.Stats.Classified++
		a.metrics.files.WithLabelValues(resultClassified).Inc()
		for s, b := range r.summaries {
			rc.Summaries[s].Add(r.path, b)
			rc.Rules[s].Merge(r.rules[s])
			a.metrics.sections.WithLabelValues(s.String()).Add(float64(r.sections))
		}
		if rc.Files != nil {
			rc.Files[r.path] = r.file
		}
	}
}

func (a *Aggregator) fail(rc *RunContext, err error) {
	rc.Stats.Failed++
	rc.Skipped = multierror.Append(rc.Skipped, err)
	a.metrics.files.WithLabelValues(resultFailed).Inc()
	level.Warn(a.logger).Log("msg", "skipping file", "err", err)
}

// CommonBinaries returns, sorted, the relative paths present in both trees
// that parse as ELF binaries on both sides.
func (a *Aggregator) CommonBinaries(ctx context.Context, oldRoot, newRoot string) ([]string, error) {
	oldFiles, _, err := Files(ctx, a.fs, oldRoot)
	if err != nil {
		return nil, err
	}
	newFiles, _, err := Files(ctx, a.fs, newRoot)
	if err != nil {
		return nil, err
	}
	inNew := make(map[string]struct{}, len(newFiles))
	for _, f := range newFiles {
		inNew[f] = struct{}{}
	}

	var (
		common = make([]string, 0, len(oldFiles))
		ok     = make([]bool, len(oldFiles))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency.Workers())
	for i, rel := range oldFiles {
		if _, found := inNew[rel]; !found {
			continue
		}
		g.Go(util.RecoverPanic(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, root := range []string{oldRoot, newRoot} {
				if _, err := a.parser.parse(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
					level.Debug(a.logger).Log("msg", "not common", "path", rel, "err", err)
					return nil
				}
			}
			ok[i] = true
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, rel := range oldFiles {
		if ok[i] {
			common = append(common, rel)
		}
	}
	sort.Strings(common)
	return common, nil
}
