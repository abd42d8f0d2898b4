package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/urfave/cli/v2"
)

// errValidationFailed makes a failed validation exit non-zero.
var errValidationFailed = errors.New("validation failed")

// CollCommand returns the coll subcommand group.
func CollCommand() *cli.Command {
	queryFlag := &cli.StringFlag{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "Query document as JSON, or @FILE",
	}
	skipFlag := &cli.IntFlag{Name: "skip", Usage: "Documents to skip"}
	limitFlag := &cli.IntFlag{Name: "limit", Usage: "Maximum documents (0 = no limit)"}
	forceFlag := &cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"}

	return &cli.Command{
		Name:    "coll",
		Aliases: []string{"c"},
		Usage:   "Query and modify a collection",
		Subcommands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "Find documents",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					queryFlag,
					&cli.StringFlag{Name: "projection", Aliases: []string{"p"}, Usage: "Projection as JSON"},
					&cli.StringFlag{Name: "sort", Usage: "Sort specification as JSON"},
					skipFlag,
					limitFlag,
				},
				Action: collFind,
			},
			{
				Name:      "count",
				Usage:     "Count documents",
				ArgsUsage: "COLLECTION",
				Flags:     []cli.Flag{queryFlag, skipFlag, limitFlag},
				Action:    collCount,
			},
			{
				Name:      "aggregate",
				Usage:     "Run an aggregation pipeline",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pipeline", Usage: "Pipeline as a JSON array, or @FILE", Required: true},
				},
				Action: collAggregate,
			},
			{
				Name:      "insert",
				Usage:     "Insert one document or an array of documents",
				ArgsUsage: "COLLECTION [DOCUMENT]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Read the document(s) from FILE (- for stdin)"},
				},
				Action: collInsert,
			},
			{
				Name:      "update",
				Usage:     "Update documents",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					queryFlag,
					&cli.StringFlag{Name: "update", Aliases: []string{"u"}, Usage: "Update document as JSON", Required: true},
					&cli.BoolFlag{Name: "upsert", Usage: "Insert when nothing matches"},
					&cli.BoolFlag{Name: "multi", Usage: "Update every match"},
				},
				Action: collUpdate,
			},
			{
				Name:      "remove",
				Usage:     "Remove documents",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					queryFlag,
					&cli.BoolFlag{Name: "just-one", Usage: "Remove only the first match"},
					forceFlag,
				},
				Action: collRemove,
			},
			{
				Name:      "drop",
				Usage:     "Drop the collection",
				ArgsUsage: "COLLECTION",
				Flags:     []cli.Flag{forceFlag},
				Action:    collDrop,
			},
			{
				Name:      "validate",
				Usage:     "Check the collection against expected documents",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "expected", Aliases: []string{"e"}, Usage: "Expected documents as a JSON array, or @FILE", Required: true},
					&cli.StringFlag{Name: "mode", Usage: "equals, contains, contains_any or contains_none"},
				},
				Action: collValidate,
			},
			indexesCommand(forceFlag),
		},
	}
}

func indexesCommand(forceFlag cli.Flag) *cli.Command {
	return &cli.Command{
		Name:    "indexes",
		Aliases: []string{"idx"},
		Usage:   "Manage collection indexes",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List indexes",
				ArgsUsage: "COLLECTION",
				Action:    func(c *cli.Context) error { return runCollection(c, "getIndexes", nil) },
			},
			{
				Name:      "ensure",
				Usage:     "Create an index if it does not exist",
				ArgsUsage: "COLLECTION",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keys", Aliases: []string{"k"}, Usage: "Index keys as JSON, e.g. {\"name\":1}", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Index name"},
					&cli.BoolFlag{Name: "unique", Usage: "Reject duplicate keys"},
					&cli.BoolFlag{Name: "sparse", Usage: "Skip documents without the keys"},
					&cli.Int64Flag{Name: "expire-after", Usage: "TTL in seconds"},
				},
				Action: indexEnsure,
			},
			{
				Name:      "drop",
				Usage:     "Drop an index by name",
				ArgsUsage: "COLLECTION NAME",
				Action: func(c *cli.Context) error {
					name := c.Args().Get(1)
					if name == "" {
						return fmt.Errorf("index name required")
					}
					args := newArgs()
					args.set("name", name)
					return runCollection(c, "dropIndex", args)
				},
			},
			{
				Name:      "drop-all",
				Usage:     "Drop every index except _id",
				ArgsUsage: "COLLECTION",
				Flags:     []cli.Flag{forceFlag},
				Action: func(c *cli.Context) error {
					if !confirm(c, fmt.Sprintf("Drop all indexes on %q?", c.Args().First())) {
						printf(c, "Cancelled.")
						return nil
					}
					return runCollection(c, "dropIndexes", nil)
				},
			},
			{
				Name:      "rebuild",
				Usage:     "Rebuild all indexes",
				ArgsUsage: "COLLECTION",
				Action:    func(c *cli.Context) error { return runCollection(c, "reIndex", nil) },
			},
		},
	}
}

func collFind(c *cli.Context) error {
	args := newArgs()
	args.jsonFlag(c, "query")
	args.jsonFlag(c, "projection")
	args.jsonFlag(c, "sort")
	args.intFlag(c, "skip")
	args.intFlag(c, "limit")
	return runCollection(c, "find", args)
}

func collCount(c *cli.Context) error {
	args := newArgs()
	args.jsonFlag(c, "query")
	args.intFlag(c, "skip")
	args.intFlag(c, "limit")
	return runCollection(c, "count", args)
}

func collAggregate(c *cli.Context) error {
	args := newArgs()
	args.jsonFlag(c, "pipeline")
	return runCollection(c, "aggregate", args)
}

func collInsert(c *cli.Context) error {
	var doc string
	switch file := c.String("file"); {
	case file != "":
		data, err := readInput(c, file)
		if err != nil {
			return err
		}
		doc = string(data)
	case c.Args().Len() > 1:
		doc = c.Args().Get(1)
	default:
		return fmt.Errorf("document required: pass it as an argument or with --file")
	}

	args := newArgs()
	args.rawValue("document", doc)
	return runCollection(c, "insert", args)
}

func collUpdate(c *cli.Context) error {
	args := newArgs()
	args.jsonFlag(c, "query")
	args.jsonFlag(c, "update")
	if c.Bool("upsert") {
		args.set("upsert", true)
	}
	if c.Bool("multi") {
		args.set("multi", true)
	}
	return runCollection(c, "update", args)
}

func collRemove(c *cli.Context) error {
	if c.String("query") == "" && !confirm(c, fmt.Sprintf("Remove every document from %q?", c.Args().First())) {
		printf(c, "Cancelled.")
		return nil
	}

	args := newArgs()
	if c.String("query") != "" {
		args.jsonFlagAs(c, "query", "constraint")
	}
	if c.Bool("just-one") {
		args.set("just_one", true)
	}
	return runCollection(c, "remove", args)
}

func collDrop(c *cli.Context) error {
	if !confirm(c, fmt.Sprintf("Drop collection %q?", c.Args().First())) {
		printf(c, "Cancelled.")
		return nil
	}
	return runCollection(c, "drop", nil)
}

func indexEnsure(c *cli.Context) error {
	args := newArgs()
	args.jsonFlag(c, "keys")
	if v := c.String("name"); v != "" {
		args.set("options.name", v)
	}
	if c.Bool("unique") {
		args.set("options.unique", true)
	}
	if c.Bool("sparse") {
		args.set("options.sparse", true)
	}
	if c.IsSet("expire-after") {
		args.set("options.expireAfterSeconds", c.Int64("expire-after"))
	}
	return runCollection(c, "ensureIndex", args)
}

func collValidate(c *cli.Context) error {
	coll := c.Args().First()
	if coll == "" {
		return fmt.Errorf("collection name required")
	}
	expected, err := jsonInput(c, c.String("expected"))
	if err != nil {
		return fmt.Errorf("--expected: %w", err)
	}

	mgr := EnsureConnected(c)
	resID, err := mgr.ResID()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	ok, err := mgr.Client().Validate(ctx, resID, coll, c.String("mode"), expected)
	if err != nil {
		return err
	}
	if isTable(c) {
		verdict := "PASS"
		if !ok {
			verdict = "FAIL"
		}
		fmt.Fprintln(stdout(c), verdict)
	} else if err := render(c, map[string]bool{"result": ok}); err != nil {
		return err
	}
	if !ok {
		return errValidationFailed
	}
	return nil
}

// runCollection runs a collection method against the collection named by
// the first argument and prints the result.
func runCollection(c *cli.Context, method string, args *argBuilder) error {
	coll := c.Args().First()
	if coll == "" {
		return fmt.Errorf("collection name required")
	}

	var raw json.RawMessage
	if args != nil {
		var err error
		if raw, err = args.bytes(); err != nil {
			return err
		}
	}

	mgr := EnsureConnected(c)
	resID, err := mgr.ResID()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := mgr.Client().Call(ctx, resID, coll, method, raw)
	if err != nil {
		return err
	}
	value, err := present(method, result)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case nil:
		printf(c, "OK")
		return nil
	case string:
		fmt.Fprintln(stdout(c), v)
		return nil
	default:
		return render(c, v)
	}
}

// argBuilder assembles request arguments as one JSON object. The first
// error sticks and is reported by bytes.
type argBuilder struct {
	out []byte
	err error
}

func newArgs() *argBuilder {
	return &argBuilder{out: []byte("{}")}
}

func (b *argBuilder) set(path string, v any) {
	if b.err != nil {
		return
	}
	b.out, b.err = sjson.SetBytes(b.out, path, v)
}

// rawValue stores a JSON text, rejecting anything that does not parse.
func (b *argBuilder) rawValue(path, text string) {
	if b.err != nil {
		return
	}
	text = strings.TrimSpace(text)
	if !gjson.Valid(text) {
		b.err = fmt.Errorf("%s: not valid JSON", path)
		return
	}
	b.out, b.err = sjson.SetRawBytes(b.out, path, []byte(text))
}

func (b *argBuilder) jsonFlag(c *cli.Context, name string) {
	b.jsonFlagAs(c, name, name)
}

func (b *argBuilder) jsonFlagAs(c *cli.Context, flag, path string) {
	if b.err != nil || c.String(flag) == "" {
		return
	}
	data, err := jsonInput(c, c.String(flag))
	if err != nil {
		b.err = fmt.Errorf("--%s: %w", flag, err)
		return
	}
	b.out, b.err = sjson.SetRawBytes(b.out, path, data)
}

func (b *argBuilder) intFlag(c *cli.Context, name string) {
	if c.IsSet(name) {
		b.set(name, c.Int(name))
	}
}

func (b *argBuilder) bytes() (json.RawMessage, error) {
	return b.out, b.err
}

// jsonInput reads a JSON flag value. "@FILE" reads the file and "@-" reads
// stdin.
func jsonInput(c *cli.Context, value string) (json.RawMessage, error) {
	data := []byte(value)
	if name, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		if data, err = readInput(c, name); err != nil {
			return nil, err
		}
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("not valid JSON")
	}
	return json.RawMessage(data), nil
}

func readInput(c *cli.Context, name string) ([]byte, error) {
	if name == "-" {
		reader := c.App.Reader
		if reader == nil {
			reader = os.Stdin
		}
		return io.ReadAll(reader)
	}
	return os.ReadFile(name)
}
