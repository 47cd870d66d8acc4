package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-token-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
// owner 使用 varbinary，逐位元組比較，不受伺服器預設 collation 的大小寫與尾端空白規則影響
type sqlAccount struct {
	Owner     string `gorm:"primaryKey;type:varbinary(191)"`
	Balance   uint64 `gorm:"not null"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表，自增 ID 即為交易序號
type sqlTransaction struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RefID     []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.TransactionID
	FromOwner string `gorm:"type:varbinary(191)"`
	ToOwner   string `gorm:"type:varbinary(191);not null"`
	Amount    uint64
	Type      uint8
	CreatedAt int64 `gorm:"autoCreateTime:milli"` // 自動寫入時間
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (t *sqlTransaction) toDomain() *domain.Transaction {
	return &domain.Transaction{
		Sequence:  t.ID,
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
		From:      t.FromOwner,
		To:        t.ToOwner,
		Type:      domain.TransactionType(t.Type),
	}
}

type MySQLLedger struct {
	client *mysql.Client
}

func NewMySQLLedger(client *mysql.Client) *MySQLLedger {
	return &MySQLLedger{
		client: client,
	}
}

// Migrate 建立/更新資料表
func (ledger *MySQLLedger) Migrate(ctx context.Context) error {
	return ledger.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

// PostTransaction 在單一 DB Transaction 內完成檢查、扣款、入帳與交易紀錄
func (ledger *MySQLLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) error {
	if err := tran.Validate(); err != nil {
		return err
	}

	var sequence uint64
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先檢查是否有這筆交易記錄
		var existing sqlTransaction
		err := tx.Where("ref_id = ?", tran.TransactionID[:]).First(&existing).Error
		if err == nil {
			if !existing.toDomain().SamePayload(tran) {
				return domain.ErrTransactionConflict
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %v", domain.ErrSelectTransactionFailed, err)
		}

		// 悲觀鎖，依固定順序鎖定以避免死鎖
		var rows []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner IN ?", tran.GetLockOwners()).
			Order("owner").
			Find(&rows).Error; err != nil {
			return err
		}
		accounts := make(map[string]*domain.Account, len(rows))
		for _, row := range rows {
			accounts[row.Owner] = domain.NewAccount(row.Owner, row.Balance)
		}

		// 依照 Type 執行業務邏輯，所有檢查都在寫入之前
		if tran.Type == domain.TransactionTypeTransfer {
			from, ok := accounts[tran.From]
			if !ok {
				return domain.ErrAccountNotFound
			}
			if err := from.Debit(tran.Amount); err != nil {
				return err
			}
		}
		to, exists := accounts[tran.To]
		if !exists {
			to = domain.NewAccount(tran.To, 0)
			accounts[tran.To] = to
		}
		if err := to.Credit(tran.Amount); err != nil {
			return err
		}

		// 更新資料庫
		for _, owner := range tran.GetLockOwners() {
			account := accounts[owner]
			row := sqlAccount{Owner: account.Owner, Balance: account.Balance}
			if owner == tran.To && !exists {
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&sqlAccount{}).
				Where("owner = ?", owner).
				Update("balance", account.Balance).Error; err != nil {
				return err
			}
		}

		// 建立交易紀錄
		record := sqlTransaction{
			RefID:     tran.TransactionID[:],
			FromOwner: tran.From,
			ToOwner:   tran.To,
			Amount:    tran.Amount,
			Type:      uint8(tran.Type),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		sequence = record.ID
		return nil
	})
	if err != nil {
		return err
	}
	if sequence != 0 {
		tran.Sequence = sequence
		if tran.CreatedAt == 0 {
			tran.CreatedAt = time.Now().UnixNano()
		}
	}
	return nil
}

// GetAccountBalance 取得帳戶餘額，帳戶不存在時為 0
func (ledger *MySQLLedger) GetAccountBalance(ctx context.Context, owner string) (uint64, error) {
	var row sqlAccount
	err := ledger.client.DB().WithContext(ctx).Where("owner = ?", owner).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Balance, nil
}

// LoadAllAccounts 載入所有帳戶 (用於啟動記憶體帳本)
func (ledger *MySQLLedger) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	var rows []sqlAccount
	if err := ledger.client.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make(map[string]*domain.Account, len(rows))
	for _, row := range rows {
		accounts[row.Owner] = domain.NewAccount(row.Owner, row.Balance)
	}
	return accounts, nil
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
