package connection

import (
	"path/filepath"
	"strings"
)

// ipcPath returns the socket path of an IPC endpoint. IPC endpoints are
// either unix:// URLs or filesystem paths.
func ipcPath(endpoint string) (string, bool) {
	if p, ok := strings.CutPrefix(endpoint, "unix://"); ok {
		return p, p != ""
	}
	if filepath.IsAbs(endpoint) || strings.HasPrefix(endpoint, "./") || strings.HasSuffix(endpoint, ".ipc") {
		return endpoint, true
	}
	return "", false
}
