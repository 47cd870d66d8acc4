package memory

import (
	"context"
	"sync"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
)

// MutexLedger 是一個使用 Mutex 實現的帳本
//
// 結構:
//
//	book: 帳戶資料、冪等紀錄、WAL 與快照
//	mu: 寫入時獨佔整個帳本，查詢時共享
type MutexLedger struct {
	book *accountBook
	mu   sync.RWMutex
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 Map (可為 nil，會被快照取代)
//	opts: WAL、快照、Logger
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts map[string]*domain.Account, opts ...Option) (*MutexLedger, error) {
	ledger := &MutexLedger{
		book: newAccountBook(accounts, newOptions(opts)),
	}
	if err := ledger.book.recover(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// GetAccountBalance 取得指定帳戶的當前餘額，帳戶不存在時為 0
func (m *MutexLedger) GetAccountBalance(ctx context.Context, owner string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.balance(owner), nil
}

// LoadAllAccounts 回傳所有帳戶的副本
func (m *MutexLedger) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.copyAccounts(), nil
}

// PostTransaction 處理交易請求 (Mutex Lock)
// 鎖在進入時取得，任何回傳路徑都會釋放
func (m *MutexLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.post(tran)
}

// Snapshot 保存快照並清空 WAL，期間暫停所有交易
func (m *MutexLedger) Snapshot(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.snapshot()
}

// Sequence 最後套用的交易序號
func (m *MutexLedger) Sequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.sequence
}

var _ usecase.Ledger = (*MutexLedger)(nil)
