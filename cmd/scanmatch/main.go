// Command scanmatch builds scan-matching maps from point clouds, matches
// scans against them, renders diagnostic plots, and keeps maps and runs in
// a sqlite store.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/timeutil"
	"github.com/banshee-data/scanmatch/internal/version"
)

// errUsage reports a command line that could not be parsed. The offending
// flag set has already printed its usage.
var errUsage = errors.New("usage error")

// env is what every subcommand runs with.
type env struct {
	cfg    *config.TuningConfig
	log    *monitoring.Logger
	clock  timeutil.Clock
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "scanmatch: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("scanmatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	configPath := fs.String("config", "", "Tuning config JSON (defaults built in)")
	verbose := fs.Bool("v", false, "Log diagnostics to stderr")
	trace := fs.Bool("trace", false, "Log per-iteration telemetry to stderr (implies -v)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 1 {
		printUsage(stderr)
		return errUsage
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			return err
		}
	}

	var diagW, traceW io.Writer
	if *verbose || *trace {
		diagW = stderr
	}
	if *trace {
		traceW = stderr
	}
	e := &env{
		cfg:    cfg,
		log:    monitoring.NewLogger("scanmatch: ", stderr, diagW, traceW),
		clock:  timeutil.RealClock{},
		stdout: stdout,
		stderr: stderr,
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "build":
		return e.build(rest)
	case "match":
		return e.match(rest)
	case "plot":
		return e.plot(rest)
	case "store":
		return e.store(rest)
	case "version":
		fmt.Fprintf(stdout, "scanmatch %s\n", version.String())
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

// newFlagSet returns a subcommand flag set that reports errors instead of
// exiting.
func (e *env) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `scanmatch - 2-D laser scan matching against statistical maps

Usage: scanmatch [-config file] [-v] [-trace] <command> [options]

Commands:
  build      Count a CSV point cloud into a map and build its probability map
  match      Match a CSV scan against a map from an initial pose
  plot       Render a likelihood heatmap (PNG) or map scatter (HTML)
  store      Save, list and delete maps and runs in a sqlite store
  version    Show version information
  help       Show this help message

Points files are CSV with x,y columns in metres. A non-numeric first row is
treated as a header and lines starting with # are ignored.

Examples:
  scanmatch build -points walls.csv -out maps/lab
  scanmatch match -map maps/lab -scan scan.csv -pose 0.3,-0.2,0.1
  scanmatch -config tuning.json match -map maps/lab -scan scan.csv -pose 0,0,0 -chart run.html
  scanmatch plot -kind heatmap -map maps/lab -scan scan.csv -pose 0.3,-0.2,0.1 -out field.png
  scanmatch store save -db maps.db -map maps/lab -name lab
`)
}
