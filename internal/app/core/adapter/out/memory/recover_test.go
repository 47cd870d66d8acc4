package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/pkg/snapshot"
	"github.com/JoeShih716/go-token-ledger/pkg/wal"
)

func openWAL(t *testing.T, path string) *wal.WAL {
	t.Helper()
	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestLedgerRecoversFromWAL(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		path := filepath.Join(t.TempDir(), "wal.log")

		w := openWAL(t, path)
		l := newLedger(t, nil, WithWAL(w))
		require.NoError(credit(t, l, "alice", 100))
		require.NoError(transfer(t, l, "alice", "bob", 30))
		require.ErrorIs(transfer(t, l, "alice", "bob", 1000), domain.ErrInsufficientBalance)
		require.ErrorIs(transfer(t, l, "ghost", "bob", 1), domain.ErrAccountNotFound)

		// 失敗的交易不會進 WAL
		require.Equal(uint64(2), w.Records())

		restored := newLedger(t, nil, WithWAL(openWAL(t, path)))
		require.Equal(uint64(70), balanceOf(t, restored, "alice"))
		require.Equal(uint64(30), balanceOf(t, restored, "bob"))

		// 序號接續
		tran := domain.NewCredit([16]byte{9}, "carol", 1)
		require.NoError(restored.PostTransaction(context.Background(), tran))
		require.Equal(uint64(3), tran.Sequence)
	})
}

func TestLedgerSnapshotThenWAL(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		path := filepath.Join(t.TempDir(), "wal.log")
		store, err := snapshot.Open("snap", snapshot.WithInMemory())
		require.NoError(err)
		defer store.Close()

		w := openWAL(t, path)
		l := newLedger(t, nil, WithWAL(w), WithSnapshotStore(store))
		require.NoError(credit(t, l, "alice", 100))
		require.NoError(transfer(t, l, "alice", "bob", 40))
		require.NoError(l.Snapshot(context.Background()))
		require.Zero(w.Records())

		require.NoError(transfer(t, l, "bob", "carol", 15))
		require.Equal(uint64(1), w.Records())

		seq, balances, err := store.Load()
		require.NoError(err)
		require.Equal(uint64(2), seq)
		require.Equal(map[string]uint64{"alice": 60, "bob": 40}, balances)

		// 初始帳戶會被較新的快照取代
		seed := map[string]*domain.Account{"stale": domain.NewAccount("stale", 999)}
		restored := newLedger(t, seed, WithWAL(openWAL(t, path)), WithSnapshotStore(store))
		require.Equal(uint64(60), balanceOf(t, restored, "alice"))
		require.Equal(uint64(25), balanceOf(t, restored, "bob"))
		require.Equal(uint64(15), balanceOf(t, restored, "carol"))
		require.Zero(balanceOf(t, restored, "stale"))
	})
}

// flakySyncFile 讓下一次 fsync 失敗
type flakySyncFile struct {
	*os.File
	failNextSync bool
}

func (f *flakySyncFile) Sync() error {
	if f.failNextSync {
		f.failNextSync = false
		return errors.New("fsync: input/output error")
	}
	return f.File.Sync()
}

func TestLedgerWALSyncFailureIsNotReplayed(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		path := filepath.Join(t.TempDir(), "wal.log")

		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
		require.NoError(err)
		flaky := &flakySyncFile{File: file}
		w, err := wal.NewWALWithFile(flaky)
		require.NoError(err)
		t.Cleanup(func() { _ = w.Close() })

		l := newLedger(t, nil, WithWAL(w))
		require.NoError(credit(t, l, "alice", 100))

		flaky.failNextSync = true
		failed := domain.NewTransfer([16]byte{1}, "alice", "bob", 5)
		require.ErrorIs(l.PostTransaction(context.Background(), failed), domain.ErrWALWriteFailed)
		require.Zero(failed.Sequence)
		require.Equal(uint64(100), balanceOf(t, l, "alice"))
		require.Zero(balanceOf(t, l, "bob"))

		acked := domain.NewCredit([16]byte{2}, "carol", 7)
		require.NoError(l.PostTransaction(context.Background(), acked))
		require.Equal(uint64(2), acked.Sequence)

		restored := newLedger(t, nil, WithWAL(openWAL(t, path)))
		require.Equal(uint64(100), balanceOf(t, restored, "alice"))
		require.Zero(balanceOf(t, restored, "bob"))
		require.Equal(uint64(7), balanceOf(t, restored, "carol"))
	})
}

func TestLedgerSnapshotWithoutStoreIsNoop(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		l := newLedger(t, nil)
		require.NoError(t, credit(t, l, "alice", 1))
		require.NoError(t, l.Snapshot(context.Background()))
	})
}

func TestLMAXLedgerStopped(t *testing.T) {
	require := require.New(t)

	l, err := NewLMAXLedger(nil)
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	require.NoError(credit(t, l, "alice", 1))

	cancel()
	<-l.Done()
	require.ErrorIs(credit(t, l, "alice", 1), domain.ErrLedgerStopped)
	_, err = l.GetAccountBalance(context.Background(), "alice")
	require.ErrorIs(err, domain.ErrLedgerStopped)
}

func TestLMAXLedgerNotStartedHonorsContext(t *testing.T) {
	l, err := NewLMAXLedger(nil, WithChannelSize(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.GetAccountBalance(ctx, "alice")
	require.ErrorIs(t, err, context.Canceled)
}
