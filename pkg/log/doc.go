// Package log provides structured protocol logging for clients and device servers.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events: requests and replies, event notifications,
// subscription changes and errors. It is separate from operational logging
// (slog) - protocol capture provides a complete machine-readable trace of
// asynchronous traffic for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/tango/client.tlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR Events, each wrapped in RecordTag.
// Reader iterates them with an optional Filter.
package log
