// Command ledgerdb starts the storage engine against a data/log file pair,
// runs crash recovery, and opens an interactive-free demo session that
// exercises the buffer pool, B+Tree index, lock manager, and write-ahead
// log end to end. It is a small flag-driven wiring entry point, not a
// terminal UI — the teacher's bubbletea TUI is out of spec.md §1's scope.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgerdb/pkg/buffer"
	"ledgerdb/pkg/config"
	"ledgerdb/pkg/disk"
	"ledgerdb/pkg/index/btree"
	"ledgerdb/pkg/lock"
	"ledgerdb/pkg/logging"
	"ledgerdb/pkg/metrics"
	"ledgerdb/pkg/records"
	"ledgerdb/pkg/recovery"
	"ledgerdb/pkg/txn"
	"ledgerdb/pkg/types"
	"ledgerdb/pkg/wal"
)

func main() {
	configPath := flag.String("config", "", "path to a ledgerdb config file (optional)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (empty disables)")
	flag.Parse()

	opts, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: logging.LevelInfo, Format: "console"}); err != nil {
		logging.InitDefault()
	}
	defer logging.Close()

	log := logging.WithComponent("main")
	log.Infow("starting", "page_size", opts.PageSize, "buffer_pool_size", opts.BufferPoolSize)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	diskMgr, err := disk.NewFileManager(opts.DataFile, opts.LogFile, opts.PageSize)
	if err != nil {
		log.Fatalw("opening disk manager", "error", err)
	}
	defer diskMgr.Close()

	logMgr := wal.NewLogManager(diskMgr, opts.LogBufferSize, opts.LogTimeout, m)
	logMgr.Start()
	defer logMgr.Stop()

	bpm := buffer.NewBufferPoolManager(opts.BufferPoolSize, opts.PageSize, diskMgr, logMgr, m)

	log.Infow("running recovery")
	if err := recovery.New(diskMgr, bpm).Recover(); err != nil {
		log.Fatalw("recovery failed", "error", err)
	}

	lockMgr := lock.NewLockManager(m, opts.Strict2PL)
	txnMgr := txn.NewManager(lockMgr, logMgr, bpm, opts.PageSize/8)

	index, err := btree.New[int64](bpm, btree.Int64Key{}, btree.CompareInt64, opts.PageSize, types.HeaderPageID)
	if err != nil {
		log.Fatalw("opening index", "error", err)
	}

	log.Infow("ready", "index_root_initialized", true)
	runDemo(bpm, txnMgr, index, opts.PageSize/8)
}

// runDemo allocates a record page, then exercises a begin/insert/commit
// cycle through it so a fresh deployment has something observable in its
// logs and metrics; it is not a benchmark.
func runDemo(bpm *buffer.BufferPoolManager, txnMgr *txn.Manager, index *btree.BTree[int64], slotSize int) {
	log := logging.WithComponent("main")

	dataPageID, frame, ok := bpm.NewPage()
	if !ok {
		log.Errorw("demo: could not allocate a record page")
		return
	}
	records.Init(frame.Data, slotSize)
	bpm.Unpin(dataPageID, true)

	t := txnMgr.Begin()
	rid := types.RID{PageID: dataPageID, Slot: 0}

	if err := txnMgr.Insert(t, rid, []byte("hello ledgerdb")); err != nil {
		log.Errorw("demo insert failed", "error", err)
		return
	}
	inserted, err := index.Insert(42, rid)
	if err != nil {
		log.Errorw("demo insert into index failed", "error", err)
		_ = txnMgr.Abort(t)
		return
	}
	if !inserted {
		log.Errorw("demo insert into index failed: key 42 already present")
		_ = txnMgr.Abort(t)
		return
	}

	if err := txnMgr.Commit(t); err != nil {
		log.Errorw("demo commit failed", "error", err)
		return
	}

	found, ok, err := index.Search(42)
	if err != nil {
		log.Errorw("demo search failed", "error", err)
		return
	}
	log.Infow("demo transaction committed", "key", 42, "found", ok, "rid", found.String())
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.WithComponent("main").Errorw("metrics server exited", "error", err)
	}
}
