package logging

import (
	"go.uber.org/zap"
)

// WithTx creates a logger with transaction context.
//
// Example:
//
//	log := logging.WithTx(txnID)
//	log.Info("acquired exclusive lock")
func WithTx(txnID int64) *zap.SugaredLogger {
	return GetLogger().With("txn_id", txnID)
}

// WithPage creates a logger with page context. Useful for buffer pool and
// B+Tree operations.
//
// Example:
//
//	log := logging.WithPage(pageID)
//	log.Debugw("page evicted", "dirty", wasDirty)
func WithPage(pageID int32) *zap.SugaredLogger {
	return GetLogger().With("page_id", pageID)
}

// WithLock creates a logger with lock context. Useful for concurrency and
// lock manager operations.
//
// Example:
//
//	log := logging.WithLock(txnID, rid)
//	log.Infow("lock granted", "lock_type", "exclusive")
func WithLock(txnID int64, rid string) *zap.SugaredLogger {
	return GetLogger().With("txn_id", txnID, "rid", rid)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("recovery")
//	log.Info("redo pass complete")
func WithComponent(component string) *zap.SugaredLogger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
func WithError(err error) *zap.SugaredLogger {
	return GetLogger().With("error", err.Error())
}
