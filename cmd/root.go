package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hpmc-sim/hpmc-sim/sim"
	"github.com/hpmc-sim/hpmc-sim/sim/freevolume"
	"github.com/hpmc-sim/hpmc-sim/sim/trace"
)

var (
	// CLI flags shared by run and free-volume
	scenarioPath string // Path to the scenario YAML
	seed         int64  // Overrides the scenario seed when set
	logLevel     string // Log verbosity level
	workers      int    // Goroutines for concurrent sweeps; 0 = one per CPU

	// run flags
	sweeps    int    // Overrides the scenario sweep count when set
	mode      string // Overrides the integrator mode when set
	traceFlag string // Overrides the scenario trace level when set

	// free-volume flags
	samples  int    // Trial insertions
	testType string // Test particle type name; default the first type
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "hpmc-sim",
	Short: "Hard-particle Monte Carlo simulator",
}

// runCmd executes the scenario given by --config
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a hard-particle Monte Carlo scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		s := loadScenario(cmd)
		if cmd.Flags().Changed("sweeps") {
			s.Sweeps = sweeps
		}
		if cmd.Flags().Changed("mode") {
			s.Integrator.Mode = mode
		}
		if cmd.Flags().Changed("trace") {
			s.Trace = traceFlag
		}

		r, err := BuildRun(s)
		if err != nil {
			logrus.Fatalf("Failed to build scenario: %v", err)
		}
		logrus.Infof("Starting %d sweeps in %s mode with seed %d", s.Sweeps, r.Integrator.Config().Mode, s.Seed)

		startTime := time.Now()
		if err := r.Simulation.Run(s.Sweeps); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		PrintSummary(os.Stdout, r, time.Since(startTime))
		logrus.Info("Simulation complete.")
	},
}

// freeVolumeCmd estimates the free volume of the scenario's initial state
var freeVolumeCmd = &cobra.Command{
	Use:   "free-volume",
	Short: "Estimate the free volume available to a test particle",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		s := loadScenario(cmd)
		r, err := BuildRun(s)
		if err != nil {
			logrus.Fatalf("Failed to build scenario: %v", err)
		}
		typ := 0
		if testType != "" {
			t, ok := s.typeIndex()[testType]
			if !ok {
				logrus.Fatalf("Unknown test particle type %q", testType)
			}
			typ = t
		}
		est, err := freevolume.New(r.Integrator.Oracle(), r.Integrator.RNG(), freevolume.Config{Type: typ, Samples: samples, Workers: workers})
		if err != nil {
			logrus.Fatalf("Invalid free volume parameters: %v", err)
		}
		res, err := est.Estimate(r.Integrator.Step())
		if err != nil {
			logrus.Fatalf("Free volume estimate failed: %v", err)
		}
		PrintFreeVolume(os.Stdout, s.Types[typ].Name, res)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadScenario reads --config and applies the shared overrides.
func loadScenario(cmd *cobra.Command) *Scenario {
	if scenarioPath == "" {
		logrus.Fatalf("Scenario file not provided (--config). Exiting.")
	}
	s, err := LoadScenario(scenarioPath)
	if err != nil {
		logrus.Fatalf("Failed to load scenario: %v", err)
	}
	if cmd.Flags().Changed("seed") {
		s.Seed = seed
	}
	if cmd.Flags().Changed("workers") {
		s.Integrator.Workers = workers
	}
	return s
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, freeVolumeCmd} {
		c.Flags().StringVar(&scenarioPath, "config", "", "Path to the scenario YAML file")
		c.Flags().Int64Var(&seed, "seed", 42, "Master seed (overrides the scenario seed)")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().IntVar(&workers, "workers", 0, "Goroutines for concurrent sweeps (0 = one per CPU)")
	}

	runCmd.Flags().IntVar(&sweeps, "sweeps", 0, "Number of sweeps (overrides the scenario)")
	runCmd.Flags().StringVar(&mode, "mode", string(sim.ModeSerial), "Sweep mode: serial, checkerboard, domain (overrides the scenario)")
	runCmd.Flags().StringVar(&traceFlag, "trace", string(trace.TraceLevelNone), "Trace level: none, decisions, sweeps (overrides the scenario)")

	freeVolumeCmd.Flags().IntVar(&samples, "samples", 100000, "Trial insertions")
	freeVolumeCmd.Flags().StringVar(&testType, "type", "", "Test particle type (default: first type)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(freeVolumeCmd)
}
