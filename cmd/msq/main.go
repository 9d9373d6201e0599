// msq CLI - runs, builds and serves msq programs
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/msq-lang/msq/manifest"
)

const appName = "msq"

// cli carries the streams every subcommand writes to, so tests can run
// commands without touching the process's real stdio.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	log    commonlog.Logger
}

func newCLI() *cli {
	return &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		stdin:  os.Stdin,
		log:    commonlog.GetLogger("msq.cli"),
	}
}

func main() {
	os.Exit(newCLI().dispatch(os.Args[1:]))
}

// dispatch runs the subcommand named by args[0] and returns the exit status.
func (c *cli) dispatch(args []string) int {
	if len(args) < 1 {
		c.usage()
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return c.cmdRun(rest)
	case "build":
		return c.cmdBuild(rest)
	case "disasm":
		return c.cmdDisasm(rest)
	case "check":
		return c.cmdCheck(rest)
	case "repl":
		return c.cmdRepl(rest)
	case "history":
		return c.cmdHistory(rest)
	case "serve":
		return c.cmdServe(rest)
	case "lsp":
		return c.cmdLSP(rest)
	case "init":
		return c.cmdInit(rest)
	case "-h", "--help", "help":
		c.usage()
		return 0
	default:
		fmt.Fprintf(c.stderr, "%s: unknown command %q\n", appName, cmd)
		c.usage()
		return 2
	}
}

func (c *cli) usage() {
	fmt.Fprintf(c.stderr, `Usage: %[1]s <command> [options] [args]

Commands:
  %[1]s run [file]              Run a source file or compiled image (default: manifest entry)
  %[1]s build [-o out] [file]   Compile a source file to a %[2]s image
  %[1]s disasm [file]           Print the instruction listing
  %[1]s check [files...]        Report parse and compile errors
  %[1]s repl                    Start the interactive REPL
  %[1]s history [list|show|delete]  Inspect recorded runs
  %[1]s serve [-addr :4567]     Start the evaluation server (Connect HTTP/JSON)
  %[1]s lsp                     Start the language server on stdio
  %[1]s init [dir]              Create msq.toml and main.msq

Run '%[1]s <command> -h' for command options.
`, appName, ".msqc")
}

// newFlagSet creates a flag set that reports to c.stderr and carries the
// verbosity flag shared by every subcommand.
func (c *cli) newFlagSet(name string) (*flag.FlagSet, *int) {
	fs := flag.NewFlagSet(appName+" "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	verbosity := fs.Int("v", 0, "Log verbosity (0 = quiet, higher is louder)")
	return fs, verbosity
}

// config loads the nearest msq.toml (or the defaults) and configures
// logging. A verbosity flag above zero overrides the manifest.
func (c *cli) config(verbosity int) *manifest.Manifest {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
	}
	if m == nil {
		m = manifest.Default()
	}

	level := m.Log.Verbosity
	if verbosity > 0 {
		level = verbosity
	}
	var path *string
	if f := m.LogFile(); f != "" {
		path = &f
	}
	commonlog.Configure(level, path)

	if m.Dir != "." {
		c.log.Debugf("using manifest in %s", m.Dir)
	}
	return m
}
