// Package repl runs ledgersnap commands interactively.
//
// Each line is split into arguments like a shell would (single and double
// quotes, backslash escapes) and handed to an executor, normally the CLI
// application itself. Lines are kept in a history file between sessions.
package repl
