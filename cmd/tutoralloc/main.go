// Command tutoralloc reads a tutor and student roster from an Excel workbook,
// assigns every new student to a tutor and prints the allocation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/allocation"
	"github.com/yaproro/Tutor-Student-Assignment-Optimization/config"
	"github.com/yaproro/Tutor-Student-Assignment-Optimization/report"
	"github.com/yaproro/Tutor-Student-Assignment-Optimization/roster"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitInfeasible = 2
)

type options struct {
	dataPath   string
	configPath string
	dump       bool
	timeLimit  time.Duration
	nodeLimit  int
	workers    int
	branching  string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tutoralloc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.dataPath, "data", "", "Path to the Excel workbook. Prompted for when empty.")
	fs.StringVar(&o.configPath, "config", "", "Path to a YAML file with objective weights and solver limits.")
	fs.BoolVar(&o.dump, "dump", false, "Print the model (objective, constraints and variable bounds) before solving.")
	fs.DurationVar(&o.timeLimit, "time-limit", 0, "Stop the search after this long and keep the best allocation found.")
	fs.IntVar(&o.nodeLimit, "node-limit", 0, "Stop the search after this many relaxations.")
	fs.IntVar(&o.workers, "workers", 1, "Number of goroutines solving relaxations.")
	fs.StringVar(&o.branching, "branching", "", "Branching heuristic: most-infeasible, maxfun or naive.")
	fs.StringVar(&o.logLevel, "log-level", logrus.InfoLevel.String(), "Log level: debug, info, warn or error.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitFailure
	}

	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	logrus.SetLevel(level)
	logrus.SetOutput(stderr)

	cfg, err := loadConfig(fs, o)
	if err != nil {
		logrus.Errorf("Invalid configuration: %v", err)
		return exitFailure
	}
	opts, err := cfg.Solver.Options()
	if err != nil {
		logrus.Errorf("Invalid configuration: %v", err)
		return exitFailure
	}

	if o.dataPath == "" {
		o.dataPath, err = prompt(stdin, stdout, "Enter the path to the Excel data file: ")
		if err != nil {
			logrus.Errorf("Failed to read the data file path: %v", err)
			return exitFailure
		}
	}

	r, err := roster.Load(o.dataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if err := report.Summary(stdout, r); err != nil {
		logrus.Error(err)
		return exitFailure
	}

	m, err := allocation.Build(r, cfg.Weights)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	if o.dump {
		if err := allocation.Dump(stdout, m); err != nil {
			logrus.Error(err)
			return exitFailure
		}
	}

	logrus.WithFields(logrus.Fields{
		"timeLimit": opts.TimeLimit,
		"nodeLimit": opts.NodeLimit,
		"workers":   opts.Workers,
		"branching": opts.Branching,
	}).Info("Solving allocation model")

	alloc, err := m.Solve(ctx, opts)
	if errors.Is(err, allocation.ErrInfeasible) {
		if err := report.Infeasible(stdout, err); err != nil {
			logrus.Error(err)
		}
		return exitInfeasible
	}
	if err != nil {
		logrus.Errorf("Failed to solve the allocation model: %v", err)
		return exitFailure
	}

	logrus.Infof("Search finished with status %s after %d nodes", alloc.Status, alloc.Stats.Nodes)
	if err := report.Allocation(stdout, alloc); err != nil {
		logrus.Error(err)
		return exitFailure
	}
	return exitOK
}

// loadConfig reads the config file, if any, and applies the flags that were set
// explicitly on top of it.
func loadConfig(fs *flag.FlagSet, o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "time-limit":
			cfg.Solver.TimeLimit = o.timeLimit.String()
		case "node-limit":
			cfg.Solver.NodeLimit = o.nodeLimit
		case "workers":
			cfg.Solver.Workers = o.workers
		case "branching":
			cfg.Solver.Branching = o.branching
		}
	})
	return cfg, cfg.Validate()
}

func prompt(stdin io.Reader, stdout io.Writer, question string) (string, error) {
	fmt.Fprint(stdout, question)
	sc := bufio.NewScanner(stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	answer := strings.TrimSpace(sc.Text())
	if answer == "" {
		return "", errors.New("no path given")
	}
	return answer, nil
}
