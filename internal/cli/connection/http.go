package connection

import (
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// normalizeEndpoint adds http:// to bare host:port endpoints and leaves
// http, https, ws, wss and IPC endpoints untouched.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if _, ok := ipcPath(endpoint); ok {
		return endpoint
	}
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(endpoint, scheme) {
			return endpoint
		}
	}
	return "http://" + endpoint
}

// isHTTP reports whether endpoint uses the HTTP transport.
func isHTTP(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// newHTTPClient builds the HTTP transport for node calls. A nil tlsCfg
// keeps Go's defaults.
func newHTTPClient(timeout time.Duration, tlsCfg *tls.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// newWebsocketDialer builds the dialer for ws and wss endpoints. Node
// responses for large rounds exceed the default buffer sizes.
func newWebsocketDialer(tlsCfg *tls.Config) websocket.Dialer {
	return websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: maxDialTimeout,
		ReadBufferSize:   1 << 16,
		WriteBufferSize:  1 << 14,
		TLSClientConfig:  tlsCfg,
	}
}
