package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/compiler/hash"
	"github.com/msq-lang/msq/history"
	"github.com/msq-lang/msq/manifest"
	"github.com/msq-lang/msq/vm"
	"github.com/msq-lang/msq/vm/image"
)

// runOptions controls a single program run.
type runOptions struct {
	timings  bool
	dump     bool
	record   bool
	noCache  bool
	maxDepth int
}

// loaded is a program ready to execute.
type loaded struct {
	prog        *vm.Program
	fingerprint string
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func (c *cli) cmdRun(args []string) int {
	fs, verbosity := c.newFlagSet("run")
	timings := fs.Bool("timings", false, "Report how long each phase took")
	dump := fs.Bool("dump", false, "Print the memory table as the entry point returns, locals included")
	record := fs.Bool("record", false, "Record the run in the history database")
	noCache := fs.Bool("no-cache", false, "Don't read or write the image cache")
	maxDepth := fs.Int("max-depth", 0, "Maximum call depth (default from msq.toml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	path := fs.Arg(0)
	if path == "" {
		path = m.EntryPath()
	}

	opts := runOptions{
		timings:  *timings,
		dump:     *dump || m.Engine.Dump,
		record:   *record || m.History.Enabled,
		noCache:  *noCache,
		maxDepth: m.Engine.MaxDepth,
	}
	if *maxDepth > 0 {
		opts.maxDepth = *maxDepth
	}
	return c.run(m, path, opts)
}

// run loads and executes path, reporting errors on stderr.
func (c *cli) run(m *manifest.Manifest, path string, opts runOptions) int {
	started := time.Now()

	var cache *image.Cache
	if !opts.noCache {
		cache = image.NewCache(m.CacheDir())
	}
	prog, err := c.load(path, cache, opts.timings)
	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		if opts.record {
			c.record(m, &history.Run{
				Path:      path,
				Status:    statusOf(err),
				Error:     err.Error(),
				StartedAt: started,
				Duration:  time.Since(started),
			})
		}
		return 1
	}

	engine := vm.NewEngine(
		vm.WithStdout(c.stdout),
		vm.WithStdin(c.stdin),
		vm.WithMaxDepth(opts.maxDepth),
		vm.WithEntryDump(),
	)

	execStart := time.Now()
	value, ok, err := engine.Execute(prog.prog)
	c.timing(opts.timings, "Executing", execStart)

	if opts.dump {
		if werr := vm.WriteDump(c.stdout, engine.EntryDump()); werr != nil {
			fmt.Fprintf(c.stderr, "Error writing dump: %v\n", werr)
		}
	}

	if opts.record {
		run := &history.Run{
			Path:        path,
			Fingerprint: prog.fingerprint,
			Status:      history.StatusOK,
			StartedAt:   started,
			Duration:    time.Since(started),
			Memory:      engine.EntryDump(),
		}
		if err != nil {
			run.Status = statusOf(err)
			run.Error = err.Error()
		} else if ok {
			run.Value = value.String()
			run.HasValue = true
		}
		c.record(m, run)
	}

	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		return 1
	}
	return 0
}

// load reads a source file or a compiled image. Source programs are looked
// up in cache by fingerprint and source bytes before being compiled; cache
// may be nil.
func (c *cli) load(path string, cache *image.Cache, timings bool) (*loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read: %w", err)
	}

	if image.IsImage(data) {
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		c.log.Debugf("loaded image %s", path)
		return &loaded{prog: img.Program, fingerprint: img.Fingerprint}, nil
	}

	parseStart := time.Now()
	ast, err := compiler.Parse(string(data))
	if err != nil {
		return nil, err
	}
	c.timing(timings, "Parsing", parseStart)

	sum := hash.HashProgram(ast)
	fingerprint := hash.Hex(sum)
	key := hash.CacheKey(sum, data)
	if cache != nil {
		prog, ok, err := cache.Get(key)
		if err != nil {
			c.log.Warningf("%v", err)
		}
		if ok {
			return &loaded{prog: prog, fingerprint: fingerprint}, nil
		}
	}

	compileStart := time.Now()
	prog, err := compiler.Compile(ast)
	if err != nil {
		return nil, err
	}
	c.timing(timings, "Compiling", compileStart)

	if cache != nil {
		if err := cache.Put(key, path, prog); err != nil {
			c.log.Warningf("%v", err)
		}
	}
	return &loaded{prog: prog, fingerprint: fingerprint}, nil
}

func (c *cli) timing(enabled bool, phase string, start time.Time) {
	if enabled {
		fmt.Fprintf(c.stderr, "%s done in %s\n", phase, time.Since(start))
	}
}

// record stores run in the manifest's history database. Failures are
// reported but never change the exit status.
func (c *cli) record(m *manifest.Manifest, run *history.Run) {
	store, err := history.Open(m.HistoryPath())
	if err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.Record(context.Background(), run); err != nil {
		fmt.Fprintf(c.stderr, "Warning: %v\n", err)
		return
	}
	c.log.Infof("recorded run %s", run.ID)
}

// statusOf classifies a failed run.
func statusOf(err error) history.Status {
	var perr *compiler.ParseError
	var cerr *compiler.CompileError
	switch {
	case errors.As(err, &perr):
		return history.StatusParseError
	case errors.As(err, &cerr):
		return history.StatusCompileError
	}
	return history.StatusRuntimeError
}

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

func (c *cli) cmdBuild(args []string) int {
	fs, verbosity := c.newFlagSet("build")
	output := fs.String("o", "", "Output image path (default: source name with "+image.Extension+")")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	path := fs.Arg(0)
	if path == "" {
		path = m.EntryPath()
	}
	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + image.Extension
	}
	return c.build(path, out)
}

func (c *cli) build(path, out string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: cannot read %s: %v\n", path, err)
		return 1
	}

	ast, err := compiler.Parse(string(data))
	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		return 1
	}
	prog, err := compiler.Compile(ast)
	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		return 1
	}

	img := &image.Image{
		Fingerprint: hash.Hex(hash.HashProgram(ast)),
		Source:      path,
		Program:     prog,
	}
	if err := image.WriteFile(out, img); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.stdout, "Wrote %s\n", out)
	return 0
}

// ---------------------------------------------------------------------------
// disasm
// ---------------------------------------------------------------------------

func (c *cli) cmdDisasm(args []string) int {
	fs, verbosity := c.newFlagSet("disasm")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	path := fs.Arg(0)
	if path == "" {
		path = m.EntryPath()
	}

	prog, err := c.load(path, nil, false)
	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		return 1
	}
	fmt.Fprint(c.stdout, prog.prog.DisassembleWithName(filepath.Base(path)))
	return 0
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func (c *cli) cmdCheck(args []string) int {
	fs, verbosity := c.newFlagSet("check")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{m.EntryPath()}
	}
	return c.check(paths)
}

// check parses and compiles each file, printing one line per failure.
func (c *cli) check(paths []string) int {
	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err == nil {
			_, err = compiler.CompileSource(string(data))
		}
		if err != nil {
			fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return 1
	}
	fmt.Fprintf(c.stdout, "%d file(s) ok\n", len(paths))
	return 0
}
