// Package logger builds slog loggers for livesync components and provides
// attribute helpers with consistent keys.
//
// Loggers are created with functional options:
//
//	log := logger.New(
//		logger.WithDevelopment("livewatch"),
//		logger.WithLevel(slog.LevelDebug),
//	)
//
//	log.Info("query refreshed",
//		logger.Component("query"),
//		logger.QueryKey(key.ID()),
//		logger.Duration(time.Since(start)),
//	)
//
// Attribute helpers return an empty slog.Attr for zero inputs, which slog
// drops, so callers can pass optional values without nil checks:
//
//	log.Warn("fetch failed", logger.Error(err), logger.Subject(sub))
//
// Context values can be lifted into every record with WithContextValue or
// WithContextExtractors.
package logger
