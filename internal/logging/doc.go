// Package logging provides structured logging for arbor stores.
//
// # Creating a Logger
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/arbor.log",
//	})
//
// Tests use logging.NewNop, or logging.NewWithWriter with a buffer when
// they assert on output.
//
// # Structured Logging
//
//	logger.Info("revision committed",
//	    "revision", 12,
//	    "pages", 9,
//	    "duration_ms", 3,
//	)
//
// Loggers derived with WithFields or WithTxnID carry their fields into
// every entry:
//
//	txnLog := logger.WithTxnID(7)
//	txnLog.Debug("auto-commit") // includes txn=7
//
// # Output Formats
//
// Text (slog text handler):
//
//	time=2026-02-18T10:30:00Z level=INFO msg="revision committed" revision=12
//
// JSON (slog JSON handler):
//
//	{"time":"2026-02-18T10:30:00Z","level":"INFO","msg":"revision committed","revision":12}
package logging
