// Package logger provides structured logging for lpipe using zerolog.
//
// It supports JSON and console output, level configuration, bound fields,
// timed scopes and an in-memory Recorder used to attach a log transcript
// to debug-mode batch summaries.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "lpipe").WithComponent("dispatch")
//	err := log.Scope("dispatch", logger.Fields(logger.FieldPath, "Path.ECHO"), func(l *logger.Logger) error {
//		l.Info("calling handler")
//		return nil
//	})
package logger
