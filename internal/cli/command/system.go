package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server probes and status",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemProbe("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness",
				Action: systemProbe("/ready"),
			},
			{
				Name:   "status",
				Usage:  "Show the admin status summary (admin network only)",
				Action: systemStatus,
			},
			{
				Name:   "version",
				Usage:  "Show client build information",
				Action: systemVersion,
			},
		},
	}
}

func systemProbe(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client := EnsureConnected(c).Client()

		ctx, cancel := requestContext(c)
		defer cancel()

		result, err := client.Probe(ctx, path)
		if err != nil {
			return fmt.Errorf("%s %s: %w", client.BaseURL(), path, err)
		}
		if isTable(c) {
			fmt.Fprintf(stdout(c), "✓ %s is %s\n", client.BaseURL(), result["status"])
			return nil
		}
		return render(c, result)
	}
}

func systemStatus(c *cli.Context) error {
	client := EnsureConnected(c).Client()

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := client.Status(ctx)
	if err != nil {
		return err
	}
	return render(c, result)
}

func systemVersion(c *cli.Context) error {
	return render(c, buildinfo.Get())
}
