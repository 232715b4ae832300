// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (LEDGERSNAP_SECTION__KEY)
//  3. Configuration file (YAML)
//  4. Defaults already set on the target struct
//
// A double underscore separates sections in environment variable names so
// keys may contain single underscores: LEDGERSNAP_PULL__MAX_RECEIVERS sets
// pull.max_receivers.
//
// Watcher reports changes to watched files for hot reload.
package confloader
