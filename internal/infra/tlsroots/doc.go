// Package tlsroots builds the client TLS configuration for node
// connections.
//
// Trusted roots are the system pool plus an optional CA bundle. An
// optional client certificate is reloaded when its files change, so a
// long-running follow survives certificate rotation.
package tlsroots
