package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// DBCommand returns the db subcommand group.
func DBCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Namespace level operations",
		Subcommands: []*cli.Command{
			{
				Name:      "names",
				Aliases:   []string{"ls"},
				Usage:     "List collection names",
				ArgsUsage: "[RES_ID]",
				Action:    dbNames,
			},
			{
				Name:      "drop",
				Usage:     "Drop every collection of the namespace",
				ArgsUsage: "[RES_ID]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				},
				Action: dbDrop,
			},
		},
	}
}

func dbNames(c *cli.Context) error {
	mgr := EnsureConnected(c)
	resID, err := resIDArg(c, mgr)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	names, err := mgr.Client().CollectionNames(ctx, resID)
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	return render(c, names)
}

func dbDrop(c *cli.Context) error {
	mgr := EnsureConnected(c)
	resID, err := resIDArg(c, mgr)
	if err != nil {
		return err
	}

	if !confirm(c, fmt.Sprintf("Drop every collection of namespace %s?", resID)) {
		printf(c, "Cancelled.")
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := mgr.Client().DropDatabase(ctx, resID); err != nil {
		return err
	}
	printf(c, "Namespace %s dropped.", resID)
	return nil
}
