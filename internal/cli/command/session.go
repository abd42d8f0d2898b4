package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/config"
	"github.com/yndnr/sandstore-go/internal/cli/connection"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	nameFlag := &cli.StringFlag{
		Name:    "name",
		Aliases: []string{"n"},
		Usage:   "Save the session under this name (default: --session, else \"default\")",
	}
	noSaveFlag := &cli.BoolFlag{
		Name:  "no-save",
		Usage: "Do not save the session to the CLI profile",
	}

	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Create, refresh and share sessions",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Allocate a new namespace and session",
				Flags:  []cli.Flag{nameFlag, noSaveFlag},
				Action: sessionCreate,
			},
			{
				Name:   "resolve",
				Usage:  "Resolve the current token, allocating a new namespace if it is unknown",
				Flags:  []cli.Flag{nameFlag, noSaveFlag},
				Action: sessionResolve,
			},
			{
				Name:      "keep-alive",
				Usage:     "Refresh the session's idle timer",
				ArgsUsage: "[RES_ID]",
				Action:    sessionKeepAlive,
			},
			{
				Name:      "attach",
				Usage:     "Mint a second token bound to the same namespace",
				ArgsUsage: "[RES_ID]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Save the new token as a session with this name",
					},
				},
				Action: sessionAttach,
			},
			{
				Name:   "list",
				Usage:  "List saved sessions",
				Action: sessionList,
			},
			{
				Name:      "use",
				Usage:     "Make a saved session current",
				ArgsUsage: "NAME",
				Action:    sessionUse,
			},
			{
				Name:      "forget",
				Usage:     "Remove a saved session",
				ArgsUsage: "NAME",
				Action:    sessionForget,
			},
		},
	}
}

func sessionCreate(c *cli.Context) error {
	flags := ParseGlobalFlags(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	// A fresh client, so an existing token does not resolve to its namespace
	client := connection.NewHTTPClient(flags.Server, "")
	result, err := client.Resolve(ctx)
	if err != nil {
		return err
	}
	return finishResolve(c, flags, result)
}

func sessionResolve(c *cli.Context) error {
	flags := ParseGlobalFlags(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	mgr := EnsureConnected(c)
	result, err := mgr.Connect(ctx)
	if err != nil {
		return err
	}
	return finishResolve(c, flags, result)
}

func finishResolve(c *cli.Context, flags *GlobalFlags, result *connection.ResolveResult) error {
	if !c.Bool("no-save") {
		name := sessionName(c, flags)
		Profile(c).Put(name, config.Session{Server: flags.Server, Token: result.Token, ResID: result.ResID})
		if err := SaveProfile(c); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		printf(c, "Session saved as %q.", name)
	}
	return render(c, result)
}

func sessionName(c *cli.Context, flags *GlobalFlags) string {
	if name := c.String("name"); name != "" {
		return name
	}
	if flags.Session != "" {
		return flags.Session
	}
	return config.DefaultSession
}

func sessionKeepAlive(c *cli.Context) error {
	mgr := EnsureConnected(c)
	resID, err := resIDArg(c, mgr)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := mgr.Client().KeepAlive(ctx, resID); err != nil {
		return err
	}
	printf(c, "Session %s refreshed.", resID)
	return nil
}

func sessionAttach(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	mgr := EnsureConnected(c)
	resID, err := resIDArg(c, mgr)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := mgr.Client().Attach(ctx, resID)
	if err != nil {
		return err
	}

	if name := c.String("name"); name != "" {
		cfg := Profile(c)
		current := cfg.CurrentSession
		cfg.Put(name, config.Session{Server: flags.Server, Token: result.Token, ResID: result.ResID})
		// Saving the shared token does not switch sessions
		if current != "" {
			cfg.CurrentSession = current
		}
		if err := SaveProfile(c); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		printf(c, "Attached token saved as %q.", name)
	}
	return render(c, result)
}

// savedSession is one row of session list.
type savedSession struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Server  string `json:"server"`
	ResID   string `json:"res_id"`
	Token   string `json:"token" table:"wide"`
}

func sessionList(c *cli.Context) error {
	cfg := Profile(c)

	names := make([]string, 0, len(cfg.Sessions))
	for name := range cfg.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]savedSession, 0, len(names))
	for _, name := range names {
		s := cfg.Sessions[name]
		rows = append(rows, savedSession{
			Name:    name,
			Current: name == cfg.CurrentSession,
			Server:  s.Server,
			ResID:   s.ResID,
			Token:   s.Token,
		})
	}
	if len(rows) == 0 {
		printf(c, "No saved sessions. Run 'sandstore-cli session create'.")
		return nil
	}
	return render(c, rows)
}

func sessionUse(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("session name required")
	}
	cfg := Profile(c)
	if _, ok := cfg.Sessions[name]; !ok {
		return fmt.Errorf("no saved session %q", name)
	}
	cfg.CurrentSession = name
	if err := SaveProfile(c); err != nil {
		return err
	}
	printf(c, "Now using session %q.", name)
	return nil
}

func sessionForget(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("session name required")
	}
	if !Profile(c).Remove(name) {
		return fmt.Errorf("no saved session %q", name)
	}
	if err := SaveProfile(c); err != nil {
		return err
	}
	printf(c, "Session %q removed.", name)
	return nil
}
