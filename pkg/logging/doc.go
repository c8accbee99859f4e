// Package logging provides a process-wide structured logger for ledgerdb.
//
// The package wraps [go.uber.org/zap] and exposes a single global logger
// instance that is initialized once and then retrieved via GetLogger. All
// subsystems should obtain a logger through this package rather than
// constructing their own zap.Logger values, so that log level and output
// destination are controlled from a single place.
//
// # Initialisation
//
// Call Init (or InitDefault for sensible defaults) once at program startup,
// before any goroutines that might call GetLogger are spawned:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level logs to stderr.
//
// # Retrieving the logger
//
//	logger := logging.GetLogger()
//	logger.Infow("database opened", "name", dbName)
//
// If GetLogger is called before Init, a default stderr logger is created
// lazily (via sync.Once) so that packages that log during init are safe.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured fields,
// reducing repetition in hot paths:
//
//	log := logging.WithTx(txnID)     // adds txn_id field
//	log := logging.WithPage(pageID)  // adds page_id field
//	log := logging.WithLock(txnID, rid) // adds txn_id and rid fields
package logging
