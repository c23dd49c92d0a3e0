package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/elfdiff/pkg/elfcontext"
	"github.com/grafana/elfdiff/pkg/util"
)

const envPrefix = "ELFDIFF_"

var cfg struct {
	verbose     bool
	concurrency util.ConcurrencyLimit
	config      struct {
		file      string
		expandEnv bool
	}
	metricsTextfile string
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)

	fsys = afero.NewOsFs()
)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Compare the section sizes of two trees of ELF binaries.").UsageWriter(os.Stdout)
	app.Version(version.Print("elfdiff"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("concurrency", "Number of binaries parsed in parallel, or auto for GOMAXPROCS.").Envar(envPrefix + "CONCURRENCY").SetValue(&cfg.concurrency)
	app.Flag("config.file", "YAML file with the classification and sort rules.").Envar(envPrefix + "CONFIG_FILE").StringVar(&cfg.config.file)
	app.Flag("config.expand-env", "Expand ${VAR} references in the config file.").Default("false").BoolVar(&cfg.config.expandEnv)
	app.Flag("metrics.textfile", "Write the scan metrics to this file in the Prometheus text format.").Envar(envPrefix + "METRICS_TEXTFILE").StringVar(&cfg.metricsTextfile)

	scanCmd := app.Command("scan", "Scan a tree and write one row per section.")
	scanParams := addScanParams(scanCmd)
	scanTwoCmd := app.Command("scan-two", "Scan an old and a new tree and write their rows.")
	scanTwoParams := addScanTwoParams(scanTwoCmd)

	diffCmd := app.Command("diff", "Compare the group sizes of two trees.")
	diffParams := addDiffParams(diffCmd)

	rulesCmd := app.Command("rules", "Print the classification rules observed in a tree.")
	rulesParams := addRulesParams(rulesCmd)

	segmentsCmd := app.Command("segments", "Compare the PT_LOAD memory size of the binaries of two trees.")
	segmentsParams := addSegmentsParams(segmentsCmd)

	treeCmd := app.Command("tree", "Print the group sizes of a tree per directory.")
	treeParams := addTreeParams(treeCmd)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	reg := prometheus.NewRegistry()
	ctx := elfcontext.WithLogger(context.Background(), logger)
	ctx = elfcontext.WithRegistry(ctx, reg)
	ctx = withOutput(ctx, os.Stdout)

	var err error
	switch parsedCmd {
	case scanCmd.FullCommand():
		err = runScan(ctx, scanParams)
	case scanTwoCmd.FullCommand():
		err = runScanTwo(ctx, scanTwoParams)
	case diffCmd.FullCommand():
		err = runDiff(ctx, diffParams)
	case rulesCmd.FullCommand():
		err = runRules(ctx, rulesParams)
	case segmentsCmd.FullCommand():
		err = runSegments(ctx, segmentsParams)
	case treeCmd.FullCommand():
		err = runTree(ctx, treeParams)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
	if err == nil && cfg.metricsTextfile != "" {
		err = prometheus.WriteToTextfile(cfg.metricsTextfile, reg)
	}
	if err != nil {
		os.Exit(checkError(err))
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
