// cmd/root.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cosmo-sim/cosmo-sim/sim"
	"github.com/cosmo-sim/cosmo-sim/sim/ic"
	"github.com/cosmo-sim/cosmo-sim/sim/trace"
)

var (
	paramFile     string
	logLevel      string
	seed          uint64
	nPerSide      int
	velSigma      float64
	snapshotEvery int
	traceOut      string
)

var rootCmd = &cobra.Command{
	Use:   "cosmo-sim",
	Short: "Hierarchical-timestep integrator for cosmological N-body/SPH runs",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Integrate a lattice of test particles over the configured timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		cfg, err := LoadParams(paramFile)
		if err != nil {
			return err
		}

		particles, err := ic.Generate(ic.Config{
			NPerSide:    nPerSide,
			BoxSize:     cfg.PM.BoxSize,
			GasFraction: 0,
			VelSigma:    velSigma,
			MassDM:      cfg.Cosmology.OmegaCDM() * cfg.Cosmology.RhoCrit() * cfg.PM.BoxSize * cfg.PM.BoxSize * cfg.PM.BoxSize / float64(nPerSide*nPerSide*nPerSide),
		}, seed)
		if err != nil {
			return fmt.Errorf("generating initial conditions: %w", err)
		}

		hooks := sim.Hooks{Walltime: walltimeRecorder()}
		s, err := sim.NewSimulator(cfg, particles, nil, hooks)
		if err != nil {
			return err
		}

		var tr trace.Trace
		logrus.Infof("starting integration: a=%g..%g, %d particles, seed=%d",
			cfg.Time.TimeBegin, cfg.Time.TimeMax, len(particles), seed)
		if err := s.Run(sim.RunOptions{SnapshotEvery: snapshotEvery, Trace: &tr}); err != nil {
			return err
		}

		flushWalltime(s.Metrics)
		s.Metrics.Print()
		if traceOut != "" {
			f, err := os.Create(traceOut)
			if err != nil {
				return fmt.Errorf("creating trace output: %w", err)
			}
			defer f.Close() //nolint:errcheck // summary already flushed on the success path
			if err := tr.WriteSummary(f); err != nil {
				return err
			}
			logrus.Infof("trace summary written to %s", traceOut)
		}
		return nil
	},
}

// walltimeRecorder accumulates the duration since the previous phase tag.
var walltimeTags map[string]float64

func walltimeRecorder() func(tag string) {
	walltimeTags = make(map[string]float64)
	last := time.Now()
	return func(tag string) {
		now := time.Now()
		walltimeTags[tag] += now.Sub(last).Seconds()
		last = now
	}
}

func flushWalltime(m *sim.Metrics) {
	for tag, secs := range walltimeTags {
		m.WalltimeByTag[tag] += secs
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&paramFile, "params", "", "Parameter file (yaml); defaults are used when empty")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().Uint64Var(&seed, "seed", 42, "Initial-conditions seed")
	runCmd.Flags().IntVar(&nPerSide, "n", 8, "Lattice resolution per dimension")
	runCmd.Flags().Float64Var(&velSigma, "vel-sigma", 10.0, "Velocity dispersion of the initial conditions")
	runCmd.Flags().IntVar(&snapshotEvery, "snapshot-every", 0, "Write a snapshot every n sync points (0 = never)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write a yaml trace summary to this path")

	rootCmd.AddCommand(runCmd)
}
