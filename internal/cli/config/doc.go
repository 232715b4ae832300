// Package config defines the ledgersnap configuration.
//
//   - spec.go: Config struct and defaults
//   - loader.go: layered loading (file, LEDGERSNAP_* env, flags) and
//     verification
//
// The default file is ~/.ledgersnap/config.yaml; a missing default file
// is not an error.
package config
