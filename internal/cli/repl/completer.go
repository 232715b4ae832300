package repl

import (
	"sort"
	"strings"
)

// builtins are handled by the REPL itself.
var builtins = []string{"exit", "quit", "history"}

// Completer knows the command names a line may start with.
type Completer struct {
	top map[string]bool
}

// NewCompleter creates a completer over command paths such as
// "keys list". Only the first word of each path is a command name.
func NewCompleter(commands []string) *Completer {
	c := &Completer{top: make(map[string]bool)}
	for _, cmd := range append(append([]string{}, commands...), builtins...) {
		if f := strings.Fields(cmd); len(f) > 0 {
			c.top[f[0]] = true
		}
	}
	return c
}

// Known reports whether name is a top-level command.
func (c *Completer) Known(name string) bool {
	return c.top[name]
}

// Suggest returns the top-level commands close to a mistyped name.
func (c *Completer) Suggest(name string) []string {
	var out []string
	for cmd := range c.top {
		if strings.HasPrefix(cmd, name) || editDistance(cmd, name) <= 2 {
			out = append(out, cmd)
		}
	}
	sort.Strings(out)
	return out
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
