package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogDownload logs the result of writing one attachment
func LogDownload(log Logger, filename string, size int64, err error) {
	log = log.WithFields(map[string]interface{}{
		"filename": filename,
		"size":     size,
	})

	if err != nil {
		log.WithError(err).Error("Download failed")
		return
	}
	log.Info("Download completed")
}

// LogRateLimit logs an upstream 429
func LogRateLimit(log Logger, url string) {
	log.WithFields(map[string]interface{}{
		"url":    url,
		"action": "rate_limited",
	}).Warn("Rate limit reached, aborting batch")
}

// LogPartition logs the start of a creator/service sync
func LogPartition(log Logger, creator, service, mode string) {
	log.WithFields(map[string]interface{}{
		"creator": creator,
		"service": service,
		"mode":    mode,
	}).Info("Processing creator")
}

// LogMetrics logs a set of run counters
func LogMetrics(log Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}

	log.InfoWithFields("Run metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
