package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/config"
	"github.com/yndnr/sandstore-go/internal/cli/connection"
	"github.com/yndnr/sandstore-go/internal/cli/output"
	"github.com/yndnr/sandstore-go/internal/infra/buildinfo"
)

// Metadata keys on the cli.App.
const (
	metaProfile = "profile"
	metaConnMgr = "connMgr"
)

// requestTimeout bounds one command's server calls.
const requestTimeout = 30 * time.Second

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "sandstore-cli",
		Usage:    "Sandstore command-line client",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			SessionCommand(),
			CollCommand(),
			DBCommand(),
			LoadCommand(),
			SystemCommand(),
			ConfigCommand(),
			ShellCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			c.App.Metadata[metaProfile] = cfg
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Sandstore server address (default from the saved session, else localhost:5080)",
			EnvVars: []string{"SANDSTORE_SERVER"},
		},
		&cli.StringFlag{
			Name:    "token",
			Aliases: []string{"t"},
			Usage:   "Session token",
			EnvVars: []string{"SANDSTORE_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "res-id",
			Aliases: []string{"r"},
			Usage:   "Namespace res_id",
			EnvVars: []string{"SANDSTORE_RES_ID"},
		},
		&cli.StringFlag{
			Name:    "session",
			Usage:   "Saved session name",
			EnvVars: []string{"SANDSTORE_SESSION"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI profile file",
			EnvVars: []string{"SANDSTORE_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (no truncation)",
		},
	}
}

// GlobalFlags defines flags available to all commands, merged with the
// saved session.
type GlobalFlags struct {
	Server  string
	Token   string
	ResID   string
	Session string
	Config  string

	Output string // table, json, yaml
	Wide   bool
}

// ParseGlobalFlags extracts global flags from context. Flags and the
// environment win over the saved session.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	cfg := Profile(c)
	saved, _ := cfg.Current(c.String("session"))

	flags := &GlobalFlags{
		Server:  saved.Server,
		Token:   saved.Token,
		ResID:   saved.ResID,
		Session: c.String("session"),
		Config:  c.String("config"),
		Output:  cfg.DefaultOutput,
		Wide:    c.Bool("wide"),
	}
	if v := c.String("server"); v != "" {
		flags.Server = v
	}
	if v := c.String("token"); v != "" {
		flags.Token = v
	}
	if v := c.String("res-id"); v != "" {
		flags.ResID = v
	}
	if v := c.String("output"); v != "" {
		flags.Output = v
	}
	return flags
}

// Profile returns the loaded CLI profile, or the defaults.
func Profile(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[metaProfile].(*config.CLIConfig); ok {
		return cfg
	}
	cfg := config.Default()
	if c.App.Metadata != nil {
		c.App.Metadata[metaProfile] = cfg
	}
	return cfg
}

// SaveProfile writes the CLI profile back to its file.
func SaveProfile(c *cli.Context) error {
	return config.Save(Profile(c), c.String("config"))
}

// EnsureConnected returns the connection manager for the active session.
func EnsureConnected(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaConnMgr].(*connection.Manager); ok {
		return mgr
	}
	flags := ParseGlobalFlags(c)
	mgr := connection.NewManager(connection.NewHTTPClient(flags.Server, flags.Token), flags.ResID)
	if c.App.Metadata != nil {
		c.App.Metadata[metaConnMgr] = mgr
	}
	return mgr
}

// resIDArg returns the res_id from the first argument or the active session.
func resIDArg(c *cli.Context, mgr *connection.Manager) (string, error) {
	if id := c.Args().First(); id != "" {
		return id, nil
	}
	return mgr.ResID()
}

// formatter returns the formatter selected by --output.
func formatter(c *cli.Context) (output.Formatter, error) {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format, flags.Wide), nil
}

// render prints data in the selected format.
func render(c *cli.Context, data any) error {
	f, err := formatter(c)
	if err != nil {
		return err
	}
	return f.Format(stdout(c), data)
}

// isTable reports whether output is human-readable.
func isTable(c *cli.Context) bool {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	return err != nil || format == output.FormatTable
}

// printf writes a message line, suppressed for machine-readable output.
func printf(c *cli.Context, format string, args ...any) {
	if !isTable(c) {
		return
	}
	fmt.Fprintf(stdout(c), format+"\n", args...)
}

// confirm asks a yes/no question unless --force is set.
func confirm(c *cli.Context, question string) bool {
	if c.Bool("force") {
		return true
	}
	fmt.Fprintf(stdout(c), "%s [y/N]: ", question)
	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	answer, _ := bufio.NewReader(reader).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, requestTimeout)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
