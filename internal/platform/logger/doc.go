// Package logger builds the JSON slog loggers used across the server.
//
// Setup installs the process logger, optionally fanning records out to a log
// file. Request handlers carry a per-request logger in the context through
// WithLogger and FromContext.
package logger
