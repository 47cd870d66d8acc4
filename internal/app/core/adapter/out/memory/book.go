package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/pkg/wal"
)

// SnapshotStore 保存/讀取餘額快照 (pkg/snapshot 為 pebble 實作)
type SnapshotStore interface {
	Save(sequence uint64, balances map[string]uint64) error
	Load() (uint64, map[string]uint64, error)
}

// accountBook 兩種記憶體帳本共用的狀態與規則
// 本身不做同步，由 MutexLedger (鎖) 或 LMAXLedger (單一 goroutine) 保證序列化
type accountBook struct {
	accounts map[string]*domain.Account
	// 已處理過的交易，保留內容以辨識 TransactionID 被重用
	processedTransactions map[uuid.UUID]domain.Transaction
	// 最後套用的交易序號
	sequence uint64
	// Write-Ahead Logging
	wal       *wal.WAL
	snapshots SnapshotStore
	logger    *zap.Logger
}

func newAccountBook(accounts map[string]*domain.Account, o *options) *accountBook {
	if accounts == nil {
		accounts = make(map[string]*domain.Account)
	}
	return &accountBook{
		accounts:              accounts,
		processedTransactions: make(map[uuid.UUID]domain.Transaction),
		wal:                   o.wal,
		snapshots:             o.snapshots,
		logger:                o.logger,
	}
}

// recover 先載入快照，再重放 WAL 中序號大於快照的交易
// 只在建構時呼叫，無需 Lock (單執行緒)
func (b *accountBook) recover() error {
	if b.snapshots != nil {
		seq, balances, err := b.snapshots.Load()
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if seq > 0 {
			// 快照較新，取代初始帳戶資料
			b.accounts = make(map[string]*domain.Account, len(balances))
			for owner, balance := range balances {
				b.accounts[owner] = domain.NewAccount(owner, balance)
			}
			b.sequence = seq
			b.logger.Info("snapshot loaded",
				zap.Uint64("sequence", seq),
				zap.Int("accounts", len(balances)),
			)
		}
	}

	if b.wal == nil {
		return nil
	}

	var replayed int
	err := b.wal.ReadAll(func(payload []byte) error {
		var tran domain.Transaction
		if err := tran.UnmarshalBinary(payload); err != nil {
			return err
		}
		if tran.Sequence <= b.sequence {
			return nil
		}
		if err := b.check(&tran); err != nil {
			return fmt.Errorf("replay sequence %d: %w", tran.Sequence, err)
		}
		b.apply(&tran)
		b.sequence = tran.Sequence
		b.processedTransactions[tran.TransactionID] = tran
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}
	if replayed > 0 {
		b.logger.Info("wal replayed", zap.Int("transactions", replayed), zap.Uint64("sequence", b.sequence))
	}
	return nil
}

// post 執行交易核心邏輯: 冪等檢查 -> 規則檢查 -> WAL -> 更新 Map
// 規則檢查在寫 WAL 之前，WAL 內只會有可以成功套用的交易
func (b *accountBook) post(tran *domain.Transaction) error {
	if processed, ok := b.processedTransactions[tran.TransactionID]; ok {
		if !processed.SamePayload(tran) {
			return domain.ErrTransactionConflict
		}
		return nil
	}
	if err := tran.Validate(); err != nil {
		return err
	}
	if err := b.check(tran); err != nil {
		return err
	}

	tran.Sequence = b.sequence + 1
	if tran.CreatedAt == 0 {
		tran.CreatedAt = time.Now().UnixNano()
	}

	// 1. 寫入 WAL (Critical Path)
	// 失敗時 WAL 已截回寫入前的長度 (或拒絕後續寫入)，序號不前進也不會被重用
	if b.wal != nil {
		if err := b.wal.Write(tran); err != nil {
			tran.Sequence = 0
			return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}

	// 2. 套用 (check 已通過，不會失敗)
	b.apply(tran)
	b.sequence = tran.Sequence
	b.processedTransactions[tran.TransactionID] = *tran
	return nil
}

// check 檢查交易能否套用，不改變任何狀態
func (b *accountBook) check(tran *domain.Transaction) error {
	switch tran.Type {
	case domain.TransactionTypeCredit:
		if to, ok := b.accounts[tran.To]; ok {
			return to.CanCredit(tran.Amount)
		}
		return nil
	case domain.TransactionTypeTransfer:
		from, ok := b.accounts[tran.From]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if err := from.CanDebit(tran.Amount); err != nil {
			return err
		}
		// 自己轉給自己: 扣款後再入帳不可能溢位
		if tran.To == tran.From {
			return nil
		}
		if to, ok := b.accounts[tran.To]; ok {
			return to.CanCredit(tran.Amount)
		}
		return nil
	default:
		return domain.ErrInvalidTransaction
	}
}

// apply 套用交易，呼叫前必須先通過 check
func (b *accountBook) apply(tran *domain.Transaction) {
	if tran.Type == domain.TransactionTypeTransfer {
		// 扣款與入帳在同一個臨界區內完成
		_ = b.accounts[tran.From].Debit(tran.Amount)
	}
	b.credit(tran.To, tran.Amount)
}

// credit 入帳，帳戶不存在時建立
func (b *accountBook) credit(owner string, amount uint64) {
	if account, ok := b.accounts[owner]; ok {
		_ = account.Credit(amount)
		return
	}
	b.accounts[owner] = domain.NewAccount(owner, amount)
}

func (b *accountBook) balance(owner string) uint64 {
	if account, ok := b.accounts[owner]; ok {
		return account.Balance
	}
	return 0
}

// copyAccounts 回傳帳戶副本，避免外部改寫內部指標
func (b *accountBook) copyAccounts() map[string]*domain.Account {
	out := make(map[string]*domain.Account, len(b.accounts))
	for owner, a := range b.accounts {
		cp := *a
		out[owner] = &cp
	}
	return out
}

// snapshot 保存目前餘額並清空 WAL
func (b *accountBook) snapshot() error {
	if b.snapshots == nil {
		return nil
	}
	balances := make(map[string]uint64, len(b.accounts))
	for owner, a := range b.accounts {
		balances[owner] = a.Balance
	}
	if err := b.snapshots.Save(b.sequence, balances); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSnapshotFailed, err)
	}
	if b.wal != nil {
		if err := b.wal.Reset(); err != nil {
			return fmt.Errorf("%w: reset wal: %v", domain.ErrSnapshotFailed, err)
		}
	}
	b.logger.Info("snapshot saved",
		zap.Uint64("sequence", b.sequence),
		zap.Int("accounts", len(balances)),
	)
	return nil
}
