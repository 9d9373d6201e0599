package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/msq-lang/msq/history"
	"github.com/msq-lang/msq/manifest"
	"github.com/msq-lang/msq/server"
)

const helloSource = `main _ ->
  print("hello, msq")
end
`

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func (c *cli) cmdServe(args []string) int {
	fs, verbosity := c.newFlagSet("serve")
	addr := fs.String("addr", "", "Listen address (default from msq.toml, :4567)")
	record := fs.Bool("record", false, "Record every run in the history database")
	maxDepth := fs.Int("max-depth", 0, "Maximum call depth (default from msq.toml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	listen := m.Server.Addr
	if *addr != "" {
		listen = *addr
	}
	depth := m.Engine.MaxDepth
	if *maxDepth > 0 {
		depth = *maxDepth
	}

	opts := []server.ServerOption{server.WithMaxDepth(depth)}
	if *record || m.History.Enabled {
		store, err := history.Open(m.HistoryPath())
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		defer store.Close()
		opts = append(opts, server.WithHistory(store))
	}

	srv := server.New(opts...)
	defer srv.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		if _, ok := <-sigc; !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			c.log.Errorf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(listen); err != nil {
		fmt.Fprintf(c.stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// lsp
// ---------------------------------------------------------------------------

func (c *cli) cmdLSP(args []string) int {
	fs, verbosity := c.newFlagSet("lsp")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c.config(*verbosity)

	if err := server.NewLSP().Run(); err != nil {
		fmt.Fprintf(c.stderr, "LSP error: %v\n", err)
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func (c *cli) cmdInit(args []string) int {
	fs, _ := c.newFlagSet("init")
	name := fs.String("name", "", "Project name (default: directory name)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dir := fs.Arg(0)
	if dir == "" {
		dir = "."
	}
	return c.initProject(dir, *name)
}

// initProject writes msq.toml and, if it doesn't exist yet, a hello-world
// entry file.
func (c *cli) initProject(dir, name string) int {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		name = filepath.Base(abs)
	}

	m := manifest.Default()
	m.Project.Name = name
	m.Project.Version = "0.1.0"
	if err := manifest.Write(dir, m); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.stdout, "Created %s\n", filepath.Join(dir, manifest.FileName))

	entry := filepath.Join(dir, m.Source.Entry)
	if _, err := os.Stat(entry); os.IsNotExist(err) {
		if err := os.WriteFile(entry, []byte(helloSource), 0o644); err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(c.stdout, "Created %s\n", entry)
	}
	return 0
}
