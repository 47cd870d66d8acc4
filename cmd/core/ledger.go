package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	memory_adapter "github.com/JoeShih716/go-token-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-token-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-token-ledger/internal/config"
	"github.com/JoeShih716/go-token-ledger/pkg/mysql"
	"github.com/JoeShih716/go-token-ledger/pkg/snapshot"
	"github.com/JoeShih716/go-token-ledger/pkg/wal"
)

type snapshotter interface {
	Snapshot(ctx context.Context) error
}

// runningLedger 組裝好的帳本與它擁有的資源
type runningLedger struct {
	usecase.Ledger
	// 記憶體帳本才有
	snapshotter snapshotter
	lmax        *memory_adapter.LMAXLedger
	cancelLMAX  context.CancelFunc
	closers     []func() error
	log         *zap.Logger
}

func (r *runningLedger) healthy() bool {
	if r.lmax == nil {
		return true
	}
	select {
	case <-r.lmax.Done():
		return false
	default:
		return true
	}
}

// close 保存最後一次快照後，停止引擎並依相反順序釋放資源
func (r *runningLedger) close() {
	if r.snapshotter != nil {
		if err := r.snapshotter.Snapshot(context.Background()); err != nil {
			r.log.Error("final snapshot failed", zap.Error(err))
		}
	}
	if r.lmax != nil {
		r.cancelLMAX()
		<-r.lmax.Done()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.log.Warn("close ledger resource", zap.Error(err))
		}
	}
}

func buildLedger(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*runningLedger, error) {
	r := &runningLedger{log: zl}

	// 載入 account (MySQL 為帳戶初始來源)
	var seed map[string]*domain.Account
	if cfg.MySQL.Enabled {
		dbClient, err := mysql.NewClient(cfg.MySQL.Config, zl.Named("mysql"))
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		r.closers = append(r.closers, dbClient.Close)
		zl.Info("connected to mysql", zap.String("host", cfg.MySQL.Host))

		repo := mysql_adapter.NewMySQLLedger(dbClient)
		if err := repo.Migrate(ctx); err != nil {
			r.close()
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		if cfg.Ledger.Backend == config.BackendMySQL {
			r.Ledger = repo
			return r, nil
		}
		seed, err = repo.LoadAllAccounts(ctx)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		zl.Info("loaded accounts", zap.Int("accounts", len(seed)))
	}

	opts := []memory_adapter.Option{
		memory_adapter.WithLogger(zl.Named("ledger")),
		memory_adapter.WithChannelSize(cfg.Ledger.ChannelSize),
	}
	if cfg.Ledger.WALPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.WALPath), 0o755); err != nil {
			r.close()
			return nil, err
		}
		walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("open wal: %w", err)
		}
		r.closers = append(r.closers, walFile.Close)
		opts = append(opts, memory_adapter.WithWAL(walFile))
	}
	if cfg.Ledger.SnapshotDir != "" {
		store, err := snapshot.Open(cfg.Ledger.SnapshotDir)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		r.closers = append(r.closers, store.Close)
		opts = append(opts, memory_adapter.WithSnapshotStore(store))
	}

	switch cfg.Ledger.Backend {
	case config.BackendMutex:
		mutexLedger, err := memory_adapter.NewMutexLedger(seed, opts...)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("init mutex ledger: %w", err)
		}
		r.Ledger = mutexLedger
		r.snapshotter = mutexLedger
	case config.BackendLMAX:
		lmaxLedger, err := memory_adapter.NewLMAXLedger(seed, opts...)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("init lmax ledger: %w", err)
		}
		// 引擎的生命週期獨立於收到訊號的 ctx，讓 gRPC 處理完剩下的請求
		lmaxCtx, cancel := context.WithCancel(context.Background())
		lmaxLedger.Start(lmaxCtx)
		r.Ledger = lmaxLedger
		r.snapshotter = lmaxLedger
		r.lmax = lmaxLedger
		r.cancelLMAX = cancel
	default:
		r.close()
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
	return r, nil
}
