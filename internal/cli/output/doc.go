// Package output renders command results for the ledgersnap CLI.
//
//   - formatter.go: Format parsing and the Formatter factory
//   - table.go: tab-aligned tables, built from Tabular values or by reflection
//   - json.go, yaml.go: machine-readable output
//   - progress.go: key fetch progress for extractions
//   - spinner.go: activity indicator while waiting on the node
package output
