// Package logging configures slog for amanbib.
//
// Without --debug only warnings reach stderr. With --debug, JSON logs are
// also written to ~/.amanbib/logs/amanbib.log with size-based rotation.
// The serve command logs to the file only because stdout and stderr carry
// the MCP stream.
package logging
