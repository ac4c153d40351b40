package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"brewcore/internal/core"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath  string
	verbosity   int
	fixturePath string
	showMetrics bool

	stdout, stderr io.Writer
	cfg            core.Config
	log            logr.Logger
	registry       *prometheus.Registry

	openStore func(core.StorageConfig, *core.RulesEngine) (core.PersistentStore, error)
	svc       *core.Service
	store     core.PersistentStore
}

func newRootCommand(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr, openStore: core.OpenPersistentStore}
	root := &cobra.Command{
		Use:   "brewcalc",
		Short: "Compute brew sheets from recipe records",
		Long: `brewcalc evaluates the derived values of brewing recipes (water volumes,
gravities, bitterness, alcohol, yeast and priming sugar) from raw recipe records.

Records come from the configured store (memory, sqlite or postgres) and can be
seeded from a YAML recipe file with --file.

Examples:
  brewcalc sheet --file recipes.yaml
  brewcalc get recipe pale-1 OG --file recipes.yaml
  brewcalc export --file recipes.yaml
  brewcalc graph`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", os.Getenv("BREWCORE_CONFIG"), "TOML configuration file")
	flags.CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVarP(&a.fixturePath, "file", "f", "", "YAML recipe file to load before running")
	flags.BoolVar(&a.showMetrics, "metrics", false, "print engine cache metrics after the command")

	root.AddCommand(
		newSheetCommand(a),
		newGetCommand(a),
		newExportCommand(a),
		newGraphCommand(a),
		newLoadCommand(a),
	)
	return root, a
}

// execute runs root and closes the store afterwards, also when the command
// failed. It returns the process exit code.
func (a *app) execute(root *cobra.Command) int {
	err := root.Execute()
	if cerr := a.teardown(); cerr != nil {
		fmt.Fprintln(a.stderr, "Error:", cerr)
		return 1
	}
	if err != nil {
		return 1
	}
	return 0
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	level := zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	return zapr.NewLogger(zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)))
}

func (a *app) setup() error {
	a.log = newLogger(a.stderr, a.verbosity)
	cfg, err := core.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log.V(1).Info("loaded configuration", "storage", string(cfg.Storage.Driver), "blob", string(cfg.Blob.Driver), "metrics", string(cfg.Metrics.Driver))
	return nil
}

// service opens the configured store and wraps it in a Service, loading the
// --file fixture when one was given. It returns the fixture's recipe ids.
func (a *app) service(ctx context.Context) (*core.Service, []string, error) {
	if a.svc != nil {
		return a.svc, nil, nil
	}
	store, err := a.openStore(a.cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, err
	}
	a.store = store
	a.registry = prometheus.NewRegistry()
	recorder, err := core.NewRecorder(a.cfg.Metrics, a.registry)
	if err != nil {
		return nil, nil, err
	}
	opts := []core.Option{core.WithLogger(a.log)}
	if recorder != nil {
		opts = append(opts, core.WithRecorder(recorder))
	}
	svc, err := core.NewService(store, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.svc = svc
	if a.fixturePath == "" {
		return svc, nil, nil
	}
	f, err := os.Open(a.fixturePath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	fx, err := decodeFixture(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", a.fixturePath, err)
	}
	ids, err := importFixture(ctx, svc, fx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", a.fixturePath, err)
	}
	a.log.V(1).Info("loaded fixture", "path", a.fixturePath, "recipes", len(ids))
	return svc, ids, nil
}

// teardown closes the service and the store. It is safe to call more than
// once and after a failed setup.
func (a *app) teardown() error {
	if a.svc != nil {
		if a.showMetrics {
			a.printMetrics()
		}
		a.svc.Close()
		a.svc = nil
	}
	store := a.store
	a.store = nil
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (a *app) printMetrics() {
	stats := a.svc.Stats()
	fmt.Fprintf(a.stderr, "recomputations %d, invalidations %d, cached %d\n", stats.Recomputations, stats.Invalidations, stats.Cached)
	families, err := a.registry.Gather()
	if err != nil {
		a.log.Error(err, "gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			fmt.Fprintf(a.stderr, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}
