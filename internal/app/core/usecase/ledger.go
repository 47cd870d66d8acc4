package usecase

import (
	"context"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
type Ledger interface {
	// PostTransaction 不分 Credit/Transfer，直接看 tran.Type 決定
	// 成功套用時帳本會填入 tran.Sequence；重複的 TransactionID 直接回傳 nil 且 Sequence 維持 0
	PostTransaction(ctx context.Context, tran *domain.Transaction) error
	// GetAccountBalance 取得帳戶餘額，帳戶不存在時回傳 0
	GetAccountBalance(ctx context.Context, owner string) (uint64, error)
	// LoadAllAccounts 載入所有帳戶 (回傳副本)
	LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error)
}

// EventPublisher 將成功套用的交易往外送 (Kafka 等)
type EventPublisher interface {
	Publish(ctx context.Context, tran *domain.Transaction) error
}

// nopPublisher 不送出任何事件
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.Transaction) error { return nil }
