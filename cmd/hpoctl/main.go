// Command hpoctl is a thin cobra CLI wiring a demo search end to end: it
// builds a Runner bound to one of the three search algorithms and either
// an in-process objective (run) or an out-of-process scheduler (scheduler
// local/k8s), and prints the winning trial. It carries no business logic
// of its own; everything it calls lives in pkg/runner, pkg/algorithm,
// and pkg/scheduler.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/algorithm/bayes"
	"github.com/hpoforge/hpo/pkg/algorithm/grid"
	"github.com/hpoforge/hpo/pkg/algorithm/random"
	"github.com/hpoforge/hpo/pkg/hpoconfig"
	"github.com/hpoforge/hpo/pkg/hpolog"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
	"github.com/hpoforge/hpo/pkg/resultexpr"
	"github.com/hpoforge/hpo/pkg/runner"
	"github.com/hpoforge/hpo/pkg/scheduler"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "hpoctl",
		Short: "Hyper-parameter search runner",
		Long: `hpoctl drives a parallel hyper-parameter search.

"run" evaluates an in-process demo objective directly; "scheduler local"
and "scheduler k8s" instead dispatch every trial as an out-of-process
subprocess or Kubernetes DIJob, via the same Runner.`,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hpo.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(schedulerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// maybeServeMetrics starts the optional Prometheus endpoint and returns
// the worker-pool collector to attach to the Runner, or nil when the
// endpoint is disabled.
func maybeServeMetrics(cfg hpoconfig.MetricsConfig) poolservice.Metrics {
	if !cfg.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	m := poolservice.NewPromMetrics(reg, "hpo", "pool")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() { _ = http.ListenAndServe(cfg.Listen, mux) }()
	return m
}

// demoSpaces is the two-dimensional search space used by every demo
// subcommand: x ~ uniform(-10, 10), y ~ quniform(-5, 5, 0.5).
func demoSpaces() (map[string]interface{}, error) {
	x, err := hypervalue.Uniform(-10, 10)
	if err != nil {
		return nil, err
	}
	y, err := hypervalue.QUniform(-5, 5, 0.5)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"x": x, "y": y}, nil
}

// buildAlgorithmForRunner constructs the requested search strategy. Bayes
// is seeded with an identity target extractor since the demo objective
// already returns the scalar to optimize directly.
func buildAlgorithmForRunner(name string, maxSteps *int) (algorithm.Algorithm, error) {
	switch name {
	case "grid":
		return grid.New(maxSteps), nil
	case "random":
		var seed *uint64
		if s := os.Getenv("HPO_SEED"); s != "" {
			var v uint64
			if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
				seed = &v
			}
		}
		return random.New(seed, maxSteps), nil
	case "bayes":
		algo := bayes.NewDefault(bayes.Minimize, func(retval interface{}) float64 {
			v, _ := retval.(float64)
			return v
		})
		algo.MaxSteps = maxSteps
		return algo, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q (want grid, random, or bayes)", name)
	}
}

func runCmd() *cobra.Command {
	var algoName string
	var maxSteps int
	var maxWorkers int
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo search against an in-process objective",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hpoconfig.Load(cfgFile)
			if err != nil {
				return err
			}
			if maxWorkers <= 0 {
				maxWorkers = cfg.Runner.MaxWorkers
			}
			if maxRetries <= 0 {
				maxRetries = cfg.Runner.MaxRetries
			}

			spaces, err := demoSpaces()
			if err != nil {
				return err
			}

			var steps *int
			if maxSteps > 0 {
				steps = &maxSteps
			}
			algo, err := buildAlgorithmForRunner(algoName, steps)
			if err != nil {
				return err
			}

			objective := func(config interface{}) (interface{}, error) {
				m := config.(map[string]interface{})
				x := m["x"].(float64)
				y := m["y"].(float64)
				return x*x + y*y, nil
			}

			log := hpolog.New(zerolog.InfoLevel)
			r := runner.New(algo, objective).
				Spaces(spaces).
				MaxWorkers(maxWorkers).
				MaxRetries(maxRetries).
				Minimize(resultexpr.R(), "result").
				Rank(cfg.Runner.RankSize).
				Sink(hpolog.NewSink(log)).
				Metrics(maybeServeMetrics(cfg.Metrics))
			if maxSteps > 0 {
				r.MaxSteps(maxSteps)
			}
			report, err := r.Run()
			if err != nil {
				return err
			}
			if report == nil {
				fmt.Println("no trial completed")
				return nil
			}
			fmt.Printf("best: config=%v retval=%v metrics=%v\n", report.Config, report.Retval, report.Metrics)
			return nil
		},
	}

	cmd.Flags().StringVar(&algoName, "algorithm", "random", "search algorithm: grid, random, bayes")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 200, "maximum number of trials")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "worker pool size (default from config)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "per-trial retry budget (default from config)")
	return cmd
}

func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Drive a search through the out-of-process task scheduler",
	}
	cmd.AddCommand(schedulerRunCmd(scheduler.ModeLocal))
	cmd.AddCommand(schedulerRunCmd(scheduler.ModeK8s))
	return cmd
}

func schedulerRunCmd(mode scheduler.Mode) *cobra.Command {
	var algoName string
	var maxSteps int
	var templatePath string
	var manifestPath string

	cmd := &cobra.Command{
		Use:   string(mode),
		Short: fmt.Sprintf("Run a demo search through the %s scheduler", mode),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hpoconfig.Load(cfgFile)
			if err != nil {
				return err
			}
			sc := cfg.Scheduler
			if templatePath != "" {
				sc.TemplatePath = templatePath
			}
			if manifestPath != "" {
				sc.K8sManifestPath = manifestPath
			}

			sched, err := scheduler.New(scheduler.Config{
				TemplatePath:    sc.TemplatePath,
				ProjectName:     sc.ProjectName,
				WorkDir:         sc.WorkDir,
				MaxRunning:      sc.MaxRunning,
				MaxTasks:        sc.MaxTasks,
				Mode:            mode,
				Timeout:         sc.Timeout,
				PollInterval:    sc.PollInterval,
				K8sManifestPath: sc.K8sManifestPath,
				K8sNamespace:    sc.K8sNamespace,
				K8sRemotePath:   sc.K8sRemotePath,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go sched.Run(ctx)
			defer sched.Stop()

			callable := scheduler.NewCallable(sched, func() string {
				return fmt.Sprintf("trial-%08d", rand.IntN(100000000))
			})

			spaces, err := demoSpaces()
			if err != nil {
				return err
			}
			var steps *int
			if maxSteps > 0 {
				steps = &maxSteps
			}
			algo, err := buildAlgorithmForRunner(algoName, steps)
			if err != nil {
				return err
			}

			objective := func(config interface{}) (interface{}, error) {
				return callable.Func()(config)
			}

			log := hpolog.New(zerolog.InfoLevel)
			r := runner.New(algo, objective).
				Spaces(spaces).
				MaxWorkers(sc.MaxRunning).
				MaxRetries(cfg.Runner.MaxRetries).
				Minimize(resultexpr.R(), "result").
				Rank(cfg.Runner.RankSize).
				Sink(hpolog.NewSink(log)).
				Metrics(maybeServeMetrics(cfg.Metrics))
			if maxSteps > 0 {
				r.MaxSteps(maxSteps)
			}
			report, err := r.Run()
			if err != nil {
				return err
			}
			if report == nil {
				fmt.Println("no trial completed")
				return nil
			}
			fmt.Printf("best: config=%v retval=%v metrics=%v\n", report.Config, report.Retval, report.Metrics)
			return nil
		},
	}

	cmd.Flags().StringVar(&algoName, "algorithm", "random", "search algorithm: grid, random, bayes")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 50, "maximum number of trials")
	cmd.Flags().StringVar(&templatePath, "template", "", "local-mode config template path")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "k8s-mode DIJob+ConfigMap manifest path")
	return cmd
}
