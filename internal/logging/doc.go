// Package logging wraps Zap with context-aware methods for goaltrack.
//
// Every Info/Warn/Error call appends correlation fields found on the context:
// the OpenTelemetry trace and span ids, the authenticated user id, the goal
// being worked on and the HTTP request id.
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithUserID(ctx, "2b0c...")
//	ctx = logging.WithGoalID(ctx, goalID)
//	logger.Info(ctx, "goal saved", zap.Int("xp", 12))
//
// Sensitive keys (tokens, phone numbers, email addresses) are redacted by the
// encoder; config.Secret values render through logging.Secret.
//
// Level-aware sampling keeps cron passes from flooding stdout. Errors are
// never sampled.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
