package command

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sandstore-go/internal/cli/output"
)

// LoadCommand returns the load command.
func LoadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load fixture collections into the namespace",
		ArgsUsage: "FILE",
		Description: "FILE holds one JSON object mapping collection names to arrays of documents,\n" +
			"e.g. {\"users\": [{\"name\": \"ada\"}], \"orders\": []}. Use - for stdin.",
		Action: load,
	}
}

func load(c *cli.Context) error {
	file := c.Args().First()
	if file == "" {
		return fmt.Errorf("fixture file required")
	}
	data, err := readInput(c, file)
	if err != nil {
		return err
	}

	var collections map[string]json.RawMessage
	if err := json.Unmarshal(data, &collections); err != nil {
		return fmt.Errorf("fixture file must be a JSON object of collections: %w", err)
	}
	if len(collections) == 0 {
		return fmt.Errorf("fixture file has no collections")
	}

	mgr := EnsureConnected(c)
	resID, err := mgr.ResID()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	spinner := output.NewSpinner(stderr(c), fmt.Sprintf("Loading %d collections", len(names)))
	spinner.Start()
	if err := mgr.Client().LoadJSON(ctx, resID, collections); err != nil {
		spinner.Fail("Load failed")
		return err
	}
	spinner.Success(fmt.Sprintf("Loaded %d collections", len(names)))

	return render(c, names)
}
