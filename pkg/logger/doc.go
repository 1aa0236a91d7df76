// Package logger provides the structured logging interface used across kemonosync.
//
// It wraps zerolog and adds:
//   - colored console output on stderr, or raw JSON lines with format "json"
//   - an optional rotating log file (lumberjack) that always receives JSON
//   - field accumulation through WithField/WithFields
//   - a capturing TestLogger and a NopLogger for tests
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("download batch finished", map[string]interface{}{
//		"downloaded": 12,
//	})
package logger
