package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI profile management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the CLI profile (tokens masked)",
				Action: configShow,
			},
			{
				Name:   "path",
				Usage:  "Print the CLI profile location",
				Action: configPath,
			},
			{
				Name:      "set",
				Usage:     "Set a profile default",
				ArgsUsage: "default_server|default_output VALUE",
				Action:    configSet,
			},
		},
	}
}

type profileView struct {
	DefaultServer  string            `json:"default_server"`
	DefaultOutput  string            `json:"default_output"`
	CurrentSession string            `json:"current_session"`
	Sessions       map[string]string `json:"sessions"`
}

func configShow(c *cli.Context) error {
	cfg := Profile(c)

	view := profileView{
		DefaultServer:  cfg.DefaultServer,
		DefaultOutput:  cfg.DefaultOutput,
		CurrentSession: cfg.CurrentSession,
		Sessions:       make(map[string]string, len(cfg.Sessions)),
	}
	names := make([]string, 0, len(cfg.Sessions))
	for name, s := range cfg.Sessions {
		view.Sessions[name] = fmt.Sprintf("%s %s %s", s.Server, s.ResID, maskToken(s.Token))
		names = append(names, name)
	}
	sort.Strings(names)

	if !isTable(c) {
		return render(c, view)
	}
	w := stdout(c)
	fmt.Fprintf(w, "Profile:         %s\n", c.String("config"))
	fmt.Fprintf(w, "Default server:  %s\n", view.DefaultServer)
	fmt.Fprintf(w, "Default output:  %s\n", view.DefaultOutput)
	fmt.Fprintf(w, "Current session: %s\n", view.CurrentSession)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, view.Sessions[name])
	}
	return nil
}

// maskToken keeps the token prefix and its last four characters.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:5] + "****" + token[len(token)-4:]
}

func configPath(c *cli.Context) error {
	fmt.Fprintln(stdout(c), c.String("config"))
	return nil
}

func configSet(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: config set KEY VALUE")
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	cfg := Profile(c)
	switch strings.ReplaceAll(key, "-", "_") {
	case "default_server":
		cfg.DefaultServer = value
	case "default_output":
		format, err := output.ParseFormat(value)
		if err != nil {
			return err
		}
		cfg.DefaultOutput = string(format)
	default:
		return fmt.Errorf("unknown key %q (want default_server or default_output)", key)
	}

	if err := SaveProfile(c); err != nil {
		return err
	}
	printf(c, "%s set to %s.", key, value)
	return nil
}
