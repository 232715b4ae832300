// Package command defines the ledgersnap commands on urfave/cli/v2.
//
//   - root.go: the app, global flags and the per-command environment
//   - pull.go: checkpointed pulls into the ledger store
//   - follow.go: repeated pulls with a metrics and health endpoint
//   - extract.go: snapshot extraction of the storage key groups
//   - keys.go: key listing and storage prefixes
//   - checkpoint.go: stored checkpoint inspection and reset
//   - ledger.go: export of stored records
//   - inspect.go: snapshot file verification
//   - shell.go: interactive command loop
//   - version.go: build information
//
// Every command resolves its configuration the same way: defaults, the
// config file, LEDGERSNAP_* variables, then flags that were set.
package command
