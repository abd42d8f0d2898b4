package repl

import (
	"sort"
	"strings"
	"sync"

	"github.com/yndnr/sandstore-go/internal/cli/connection"
)

// Completer provides statement completion for the REPL.
type Completer struct {
	mu          sync.Mutex
	commands    []string
	collections []string
}

// NewCompleter creates a new Completer.
func NewCompleter() *Completer {
	commands := []string{"help", "history", "exit", "quit", "show collections"}
	for _, m := range databaseMethods {
		commands = append(commands, "db."+m+"()")
	}
	sort.Strings(commands)
	return &Completer{commands: commands}
}

// SetCollections records the collection names offered after "db.".
func (c *Completer) SetCollections(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = append([]string(nil), names...)
}

// Complete returns completion suggestions for the given prefix.
func (c *Completer) Complete(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}

	// db.<coll>.<method prefix>
	if rest, ok := strings.CutPrefix(prefix, "db."); ok {
		if i := strings.LastIndexByte(rest, '.'); i > 0 {
			head, partial := prefix[:len("db.")+i+1], rest[i+1:]
			for _, op := range connection.Operations() {
				if strings.HasPrefix(op, partial) {
					suggestions = append(suggestions, head+op+"(")
				}
			}
		} else {
			for _, coll := range c.collections {
				if strings.HasPrefix(coll, rest) {
					suggestions = append(suggestions, "db."+coll+".")
				}
			}
		}
	}
	return suggestions
}
