// Package logger provides structured logging for ledgersnap.
//
// It wraps the standard library log/slog:
//
//   - logger.go: Logger interface, handler setup and dynamic level
//   - context.go: Context-aware logging with run id and key group
//   - redact.go: Sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime
//   - Masking of credentials embedded in node URLs
//   - Context propagation for pull and extraction runs
package logger
