// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments
// (development vs production) and writes to stderr, leaving stdout to command output.
//
// # Run Correlation
//
// Every invocation gets a run ID. WithRunID attaches it to the logger so that all lines
// of one CI step, including those of concurrent uploads, can be correlated.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json or console
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info", Format: "console"})
//	log, runID := logger.WithRunID(log)
//	log.Info("Upload started")
package logger
