// Package logging provides structured logging for Light Manager.
//
// This package wraps Go's standard log/slog package so that every
// component logs with the same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("session").Info("connected", "client_id", id)
//
// Never log broker passwords or InfluxDB tokens.
package logging
