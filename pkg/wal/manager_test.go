package wal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledgerdb/pkg/disk"
	"ledgerdb/pkg/types"
)

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	d := disk.NewMemManager(4096)
	lm := NewLogManager(d, 4096, time.Hour, nil)

	l1 := lm.Append(&LogRecord{Type: BeginRecord, TxnID: 1})
	l2 := lm.Append(&LogRecord{Type: CommitRecord, TxnID: 1})

	require.Equal(t, types.LSN(0), l1)
	require.Equal(t, types.LSN(1), l2)
}

func TestForceFlushAndWaitMakesRecordsDurable(t *testing.T) {
	d := disk.NewMemManager(4096)
	lm := NewLogManager(d, 4096, time.Hour, nil)
	lm.Start()
	defer lm.Stop()

	lm.Append(&LogRecord{Type: BeginRecord, TxnID: 1})
	lsn := lm.Append(&LogRecord{Type: CommitRecord, TxnID: 1})

	lm.ForceFlushAndWait()
	require.GreaterOrEqual(t, lm.PersistentLSN(), lsn)

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, ok, err := d.ReadLog(buf, int64(len(out)))
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, buf[:n]...)
	}
	require.NotEmpty(t, out)
}

func TestForceFlushUpToWaitsForTargetLSN(t *testing.T) {
	d := disk.NewMemManager(4096)
	lm := NewLogManager(d, 4096, time.Hour, nil)
	lm.Start()
	defer lm.Stop()

	lsn := lm.Append(&LogRecord{Type: BeginRecord, TxnID: 1})
	lm.ForceFlushUpTo(lsn)
	require.GreaterOrEqual(t, lm.PersistentLSN(), lsn)
}

func TestBackgroundTickerFlushesWithoutExplicitForce(t *testing.T) {
	d := disk.NewMemManager(4096)
	lm := NewLogManager(d, 4096, 10*time.Millisecond, nil)
	lm.Start()
	defer lm.Stop()

	lsn := lm.Append(&LogRecord{Type: BeginRecord, TxnID: 1})

	require.Eventually(t, func() bool {
		return lm.PersistentLSN() >= lsn
	}, time.Second, 5*time.Millisecond)
}

func TestAppendRequestsFlushWhenBufferFull(t *testing.T) {
	d := disk.NewMemManager(4096)
	lm := NewLogManager(d, HeaderSize, time.Hour, nil)
	lm.Start()
	defer lm.Stop()

	lsn := lm.Append(&LogRecord{Type: BeginRecord, TxnID: 1})

	require.Eventually(t, func() bool {
		return lm.PersistentLSN() >= lsn
	}, time.Second, 5*time.Millisecond)
}
