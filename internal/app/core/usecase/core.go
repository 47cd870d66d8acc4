package usecase

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
)

const (
	opCredit   = "credit"
	opTransfer = "transfer"
	opBalance  = "balance_of"
)

// CoreUseCase 是核心業務邏輯層
// caller 一律由外層 (gRPC adapter) 從已驗證的身分取得，不信任請求內容
type CoreUseCase struct {
	ledger    Ledger
	publisher EventPublisher
	metrics   *Metrics
	logger    *zap.Logger
}

// Option 設定 CoreUseCase
type Option func(*CoreUseCase)

func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *CoreUseCase) {
		c.metrics = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = l
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:    ledger,
		publisher: nopPublisher{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SyncSupply 以帳本目前的總額初始化 total_supply 指標 (啟動或恢復後呼叫)
// 總額超過 uint64 時停在 math.MaxUint64
func (c *CoreUseCase) SyncSupply(ctx context.Context) (uint64, error) {
	accounts, err := c.ledger.LoadAllAccounts(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range accounts {
		if a.Balance > math.MaxUint64-total {
			total = math.MaxUint64
			break
		}
		total += a.Balance
	}
	c.metrics.setSupply(total)
	return total, nil
}

// Credit 無條件入帳 (receive_tokens)，回傳入帳後餘額
//
// 參數:
//
//	recipient: 入帳帳戶
//	amount: 金額，0 時不改變餘額
//	refID: 冪等用的交易編號，uuid.Nil 時自動產生
func (c *CoreUseCase) Credit(ctx context.Context, recipient string, amount uint64, refID uuid.UUID) (uint64, error) {
	tran := domain.NewCredit(orNewID(refID), recipient, amount)
	if err := c.post(ctx, opCredit, tran); err != nil {
		return 0, err
	}
	if tran.Sequence != 0 {
		c.metrics.addSupply(amount)
	}
	return c.ledger.GetAccountBalance(ctx, recipient)
}

// Transfer 由 caller 轉帳給 recipient (send_tokens)，回傳 caller 轉帳後餘額
//
// 錯誤:
//
//	domain.ErrAccountNotFound: caller 沒有帳戶 (即使 amount 為 0)
//	domain.ErrInsufficientBalance: 餘額不足
//	domain.ErrOverflow: 入帳方餘額溢位
//	domain.ErrTransactionConflict: refID 已用於內容不同的交易
func (c *CoreUseCase) Transfer(ctx context.Context, caller, recipient string, amount uint64, refID uuid.UUID) (uint64, error) {
	tran := domain.NewTransfer(orNewID(refID), caller, recipient, amount)
	if err := c.post(ctx, opTransfer, tran); err != nil {
		return 0, err
	}
	return c.ledger.GetAccountBalance(ctx, caller)
}

// BalanceOf 查詢餘額，沒有帳戶時回傳 0
func (c *CoreUseCase) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	start := time.Now()
	balance, err := c.ledger.GetAccountBalance(ctx, owner)
	c.metrics.observe(opBalance, start, err)
	return balance, err
}

func (c *CoreUseCase) post(ctx context.Context, op string, tran *domain.Transaction) error {
	if err := tran.Validate(); err != nil {
		c.metrics.observe(op, time.Now(), err)
		return err
	}

	start := time.Now()
	err := c.ledger.PostTransaction(ctx, tran)
	c.metrics.observe(op, start, err)
	if err != nil {
		c.logger.Info("transaction rejected",
			zap.Stringer("type", tran.Type),
			zap.Stringer("ref_id", tran.TransactionID),
			zap.String("from", tran.From),
			zap.String("to", tran.To),
			zap.Uint64("amount", tran.Amount),
			zap.Error(err),
		)
		return err
	}

	// Sequence 為 0 代表重複交易，帳本沒有再次套用
	if tran.Sequence == 0 {
		c.logger.Debug("duplicate transaction ignored", zap.Stringer("ref_id", tran.TransactionID))
		return nil
	}

	c.logger.Debug("transaction applied",
		zap.Stringer("type", tran.Type),
		zap.Uint64("sequence", tran.Sequence),
		zap.String("from", tran.From),
		zap.String("to", tran.To),
		zap.Uint64("amount", tran.Amount),
	)

	// 事件發送失敗不影響交易結果
	if err := c.publisher.Publish(ctx, tran); err != nil {
		c.logger.Warn("publish ledger event failed",
			zap.Uint64("sequence", tran.Sequence),
			zap.Error(err),
		)
	}
	return nil
}

func orNewID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
