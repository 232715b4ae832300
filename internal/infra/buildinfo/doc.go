// Package buildinfo exposes version information injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/ledgersnap/internal/infra/buildinfo.Version=v0.3.0 \
//	    -X github.com/yndnr/ledgersnap/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// When ldflags are absent, Commit and BuildTime fall back to the VCS
// settings the Go toolchain stamps into the binary.
package buildinfo
