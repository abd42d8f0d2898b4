package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/connection"
	"github.com/yndnr/sandstore-go/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive shell on the namespace",
		Description: "Without a saved session or --token the shell allocates a new namespace.\n" +
			"Type 'help' inside the shell for the statement syntax.",
		Action: shell,
	}
}

func shell(c *cli.Context) error {
	mgr := EnsureConnected(c)

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if !mgr.IsConnected() {
		rctx, cancel := context.WithTimeout(ctx, requestTimeout)
		result, err := mgr.Connect(rctx)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout(c), "Connected to new namespace %s (not saved; use 'session create' to keep one).\n", result.ResID)
	}

	f, err := formatter(c)
	if err != nil {
		return err
	}
	r := repl.New(&shellExecutor{mgr: mgr}, f)
	if c.App.Reader != nil {
		r.SetIO(c.App.Reader, stdout(c))
	}

	resID, _ := mgr.ResID()
	if names, err := mgr.Client().CollectionNames(ctx, resID); err == nil {
		r.Completer().SetCollections(names)
	}
	return r.Run(ctx)
}

// shellExecutor runs shell statements against the active session.
type shellExecutor struct {
	mgr *connection.Manager
}

func (e *shellExecutor) Execute(ctx context.Context, call *repl.Call) (any, error) {
	resID, err := e.mgr.ResID()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client := e.mgr.Client()
	switch {
	case call.Collection != "":
		raw, err := client.Call(ctx, resID, call.Collection, call.Method, call.Args)
		if err != nil {
			return nil, err
		}
		return present(call.Method, raw)
	case call.Method == "getCollectionNames":
		names, err := client.CollectionNames(ctx, resID)
		if names == nil {
			names = []string{}
		}
		return names, err
	case call.Method == "dropDatabase":
		return nil, client.DropDatabase(ctx, resID)
	default:
		return nil, fmt.Errorf("unknown database method %q", call.Method)
	}
}
