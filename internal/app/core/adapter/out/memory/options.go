package memory

import (
	"go.uber.org/zap"

	"github.com/JoeShih716/go-token-ledger/pkg/wal"
)

type options struct {
	wal         *wal.WAL
	snapshots   SnapshotStore
	logger      *zap.Logger
	channelSize int
}

// Option 設定記憶體帳本
type Option func(*options)

// WithWAL 啟用 Write-Ahead Log，建構時會從 WAL 恢復
func WithWAL(w *wal.WAL) Option {
	return func(o *options) {
		o.wal = w
	}
}

// WithSnapshotStore 啟用快照，建構時先載入快照再重放 WAL
func WithSnapshotStore(s SnapshotStore) Option {
	return func(o *options) {
		o.snapshots = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithChannelSize 設定 LMAXLedger 輸送帶容量
func WithChannelSize(n int) Option {
	return func(o *options) {
		o.channelSize = n
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:      zap.NewNop(),
		channelSize: 1000,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
