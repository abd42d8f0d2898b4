package repl

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/yndnr/sandstore-go/internal/cli/connection"
)

// Call is one parsed shell statement.
type Call struct {
	// Collection is empty for database methods.
	Collection string
	Method     string
	// Args holds the named arguments as one JSON object.
	Args []byte
}

// Database methods callable as db.<method>().
var databaseMethods = []string{"getCollectionNames", "dropDatabase"}

// positional names the arguments of each collection method in order.
var positional = map[string][]string{
	"find":        {"query", "projection"},
	"count":       {"query"},
	"insert":      {"document"},
	"update":      {"query", "update", "options"},
	"remove":      {"constraint", "just_one"},
	"ensureIndex": {"keys", "options"},
	"dropIndex":   {"name"},
	"drop":        {},
	"reIndex":     {},
	"dropIndexes": {},
	"getIndexes":  {},
}

// cursor lists the chainable modifiers per method.
var cursor = map[string][]string{
	"find":  {"sort", "skip", "limit"},
	"count": {"skip", "limit"},
}

var errSyntax = errors.New("expected db.<collection>.<method>(<json>, ...)")

// Parse parses a statement of the form db.<coll>.<method>(<json>, ...),
// optionally followed by cursor modifiers such as .sort({...}).limit(5),
// or a database method db.<method>().
func Parse(line string) (*Call, error) {
	s := strings.TrimSpace(line)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	rest, ok := strings.CutPrefix(s, "db.")
	if !ok {
		return nil, errSyntax
	}

	// Identifiers up to the first call; the last one is the method and the
	// ones before it form the collection name.
	var names []string
	for {
		name, tail := ident(rest)
		if name == "" {
			return nil, errSyntax
		}
		names = append(names, name)
		if strings.HasPrefix(tail, "(") {
			rest = tail
			break
		}
		var dot bool
		if rest, dot = strings.CutPrefix(tail, "."); !dot {
			return nil, errSyntax
		}
	}

	args, rest, err := arguments(rest)
	if err != nil {
		return nil, err
	}

	call := &Call{
		Method:     names[len(names)-1],
		Collection: strings.Join(names[:len(names)-1], "."),
	}
	if call.Collection == "" {
		return databaseCall(call, args, rest)
	}

	order, known := positional[call.Method]
	if _, served := connection.LookupOperation(call.Method); !known && !served {
		return nil, fmt.Errorf("unknown collection method %q", call.Method)
	}

	out := []byte("{}")
	if call.Method == "aggregate" {
		if out, err = aggregateArgs(args); err != nil {
			return nil, err
		}
	} else {
		if len(args) > len(order) {
			return nil, fmt.Errorf("%s takes at most %d arguments", call.Method, len(order))
		}
		for i, arg := range args {
			if out, err = setArg(out, call.Method, order[i], arg); err != nil {
				return nil, err
			}
		}
	}

	for rest != "" {
		var dot bool
		if rest, dot = strings.CutPrefix(rest, "."); !dot {
			return nil, errSyntax
		}
		var modifier string
		modifier, rest = ident(rest)
		if !slices.Contains(cursor[call.Method], modifier) {
			return nil, fmt.Errorf("%s does not support .%s()", call.Method, modifier)
		}
		if args, rest, err = arguments(rest); err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, fmt.Errorf(".%s() takes one argument", modifier)
		}
		if out, err = sjson.SetRawBytes(out, modifier, []byte(args[0].Raw)); err != nil {
			return nil, err
		}
	}

	call.Args = out
	return call, nil
}

func databaseCall(call *Call, args []gjson.Result, rest string) (*Call, error) {
	if !slices.Contains(databaseMethods, call.Method) {
		return nil, fmt.Errorf("unknown database method %q", call.Method)
	}
	if len(args) > 0 || rest != "" {
		return nil, fmt.Errorf("db.%s() takes no arguments", call.Method)
	}
	call.Args = []byte("{}")
	return call, nil
}

// setArg stores one positional argument under its name.
func setArg(out []byte, method, name string, arg gjson.Result) ([]byte, error) {
	switch {
	case method == "update" && name == "options":
		// {upsert, multi} are top-level flags of the update request
		if !arg.IsObject() {
			return nil, errors.New("update options must be an object")
		}
		var err error
		arg.ForEach(func(k, v gjson.Result) bool {
			out, err = sjson.SetRawBytes(out, gjson.Escape(k.String()), []byte(v.Raw))
			return err == nil
		})
		return out, err
	case name == "just_one":
		// remove(query, true) or remove(query, {"justOne": true})
		if arg.IsObject() {
			arg = arg.Get("justOne")
		}
		return sjson.SetBytes(out, name, arg.Bool())
	default:
		return sjson.SetRawBytes(out, name, []byte(arg.Raw))
	}
}

// aggregateArgs accepts aggregate([stage, ...]) and aggregate(stage, ...).
func aggregateArgs(args []gjson.Result) ([]byte, error) {
	if len(args) == 1 && args[0].IsArray() {
		return sjson.SetRawBytes([]byte("{}"), "pipeline", []byte(args[0].Raw))
	}
	stages := make([]string, len(args))
	for i, a := range args {
		stages[i] = a.Raw
	}
	return sjson.SetRawBytes([]byte("{}"), "pipeline", []byte("["+strings.Join(stages, ",")+"]"))
}

// ident reads an identifier and returns it with the remaining input.
func ident(s string) (string, string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '_' || c == '$' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return s[:i], s[i:]
}

// arguments reads a parenthesized, comma separated list of JSON values and
// returns them with the input after the closing parenthesis.
func arguments(s string) ([]gjson.Result, string, error) {
	if !strings.HasPrefix(s, "(") {
		return nil, "", errSyntax
	}

	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if c != ')' {
					return nil, "", errSyntax
				}
				body := strings.TrimSpace(s[1:i])
				list := "[" + body + "]"
				if !gjson.Valid(list) {
					return nil, "", errors.New("arguments must be JSON values separated by commas")
				}
				return gjson.Parse(list).Array(), strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return nil, "", errors.New("unbalanced parentheses")
}
