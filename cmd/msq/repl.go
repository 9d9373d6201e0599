package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/msq-lang/msq/compiler"
	"github.com/msq-lang/msq/vm"
)

const (
	replHistoryFile = ".msq_history"
	promptMain      = "msq> "
	promptCont      = "...  "
)

const replHelp = `REPL commands:
  :help, :h     Show this help
  :memory, :m   Print the memory table
  :names        List every name in scope
  :quit, :q     Exit the REPL
`

// repl holds the state that survives between inputs: one compiler scope
// and one engine store.
type repl struct {
	session *compiler.Session
	engine  *vm.Engine
	out     io.Writer
}

// newRepl creates a REPL and binds the built-ins.
func newRepl(out io.Writer, in io.Reader, maxDepth int) (*repl, error) {
	r := &repl{
		session: compiler.NewSession(),
		engine: vm.NewEngine(
			vm.WithStdout(out),
			vm.WithStdin(in),
			vm.WithMaxDepth(maxDepth),
		),
		out: out,
	}
	if _, _, err := r.engine.ExecuteInstructions(r.session.Prelude()); err != nil {
		return nil, err
	}
	return r, nil
}

// eval runs one chunk of input. The value of a trailing call or return is
// reported back.
func (r *repl) eval(src string) (vm.Value, bool, error) {
	prog, err := compiler.Parse(src)
	if err != nil {
		return vm.Value{}, false, err
	}
	instrs, err := r.session.Lower(prog)
	if err != nil {
		return vm.Value{}, false, err
	}
	return r.engine.ExecuteInstructions(instrs)
}

// command handles a ':' meta-command. exit is true for :quit.
func (r *repl) command(line string) (exit bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case ":quit", ":q":
		return true
	case ":help", ":h", ":?":
		fmt.Fprint(r.out, replHelp)
	case ":memory", ":m":
		vm.WriteDump(r.out, r.engine.Dump())
	case ":names":
		names := r.session.Names()
		sort.Strings(names)
		fmt.Fprintln(r.out, strings.Join(names, " "))
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", line)
	}
	return false
}

// complete offers names and keywords that extend the last word of line.
func (r *repl) complete(line string) []string {
	start := strings.LastIndexFunc(line, func(ch rune) bool {
		return !(ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z')
	}) + 1
	head, word := line[:start], line[start:]
	if word == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, candidates := range [][]string{r.session.Names(), compiler.Keywords()} {
		for _, name := range candidates {
			if strings.HasPrefix(name, word) && !seen[name] {
				seen[name] = true
				out = append(out, head+name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// formatValue renders a REPL result. Strings are quoted so "1" and 1 can
// be told apart.
func formatValue(v vm.Value) string {
	if v.Kind == vm.KindString {
		return strconv.Quote(v.Str)
	}
	return v.String()
}

func (c *cli) cmdRepl(args []string) int {
	fs, verbosity := c.newFlagSet("repl")
	maxDepth := fs.Int("max-depth", 0, "Maximum call depth (default from msq.toml)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := c.config(*verbosity)
	depth := m.Engine.MaxDepth
	if *maxDepth > 0 {
		depth = *maxDepth
	}

	r, err := newRepl(c.stdout, c.stdin, depth)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(c.stdout, "msq REPL (Ctrl+D exits, :help for commands)")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(r.complete)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, replHistoryFile)
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		src, ok := readChunk(ln)
		if !ok {
			fmt.Fprintln(c.stdout)
			return 0
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			if r.command(src) {
				return 0
			}
			continue
		}

		v, ok, err := r.eval(src)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			continue
		}
		if ok {
			fmt.Fprintln(c.stdout, formatValue(v))
		}
	}
}

// readChunk reads lines until they form something the parser can finish,
// switching to the continuation prompt while a construct is still open.
// ok is false at end of input.
func readChunk(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, err := compiler.Parse(src); compiler.IsIncomplete(err) {
			continue
		}
		return src, true
	}
}
