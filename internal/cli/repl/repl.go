package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yndnr/sandstore-go/internal/cli/output"
)

// Prompt is printed before each statement.
const Prompt = "sandstore> "

// Executor runs parsed statements.
type Executor interface {
	// Execute runs call and returns a value to print, or nil.
	Execute(ctx context.Context, call *Call) (any, error)
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	completer *Completer
	history   *History
	exec      Executor
	formatter output.Formatter
}

// New creates a new REPL on stdin and stdout.
func New(exec Executor, formatter output.Formatter) *REPL {
	return &REPL{
		input:     os.Stdin,
		output:    os.Stdout,
		completer: NewCompleter(),
		history:   NewHistory(),
		exec:      exec,
		formatter: formatter,
	}
}

// SetIO redirects the REPL input and output.
func (r *REPL) SetIO(in io.Reader, out io.Writer) {
	r.input = in
	r.output = out
}

// Completer returns the shell completer.
func (r *REPL) Completer() *Completer {
	return r.completer
}

// Run starts the REPL loop. It returns on exit, EOF or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	// History is best effort
	_ = r.history.Load()
	defer r.history.Save()

	reader := bufio.NewReader(r.input)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.output, Prompt)

		line, err := reader.ReadString('\n')
		if err == io.EOF && strings.TrimSpace(line) == "" {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		if line == "exit" || line == "quit" {
			return nil
		}
		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
	}
}

func (r *REPL) execute(ctx context.Context, line string) error {
	switch line {
	case "help":
		fmt.Fprint(r.output, helpText)
		return nil
	case "history":
		for i := r.history.Len() - 1; i >= 0; i-- {
			fmt.Fprintln(r.output, r.history.Get(i))
		}
		return nil
	case "show collections":
		line = "db.getCollectionNames()"
	}

	call, err := Parse(line)
	if err != nil {
		return err
	}
	result, err := r.exec.Execute(ctx, call)
	if err != nil {
		return err
	}

	switch v := result.(type) {
	case nil:
		fmt.Fprintln(r.output, "OK")
	case string:
		fmt.Fprintln(r.output, v)
	default:
		if names, ok := v.([]string); ok && call.Method == "getCollectionNames" {
			r.completer.SetCollections(names)
		}
		return r.formatter.Format(r.output, v)
	}
	return nil
}

const helpText = `Statements:
  db.<coll>.find(query, projection)[.sort(spec)][.skip(n)][.limit(n)]
  db.<coll>.count(query)[.skip(n)][.limit(n)]
  db.<coll>.aggregate([stage, ...])
  db.<coll>.insert(document | [document, ...])
  db.<coll>.update(query, update, {"upsert": bool, "multi": bool})
  db.<coll>.remove(constraint, justOne)
  db.<coll>.drop()
  db.<coll>.ensureIndex(keys, options)
  db.<coll>.getIndexes() | dropIndex(name) | dropIndexes() | reIndex()
  db.getCollectionNames()  (or: show collections)
  db.dropDatabase()
Commands: help, history, exit, quit
`
