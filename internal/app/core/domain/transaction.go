package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TransactionType 交易類型
// 為了極致節省記憶體，使用 uint8
type TransactionType uint8

const (
	// 入帳 (receive_tokens，或轉帳的入帳半段)
	TransactionTypeCredit TransactionType = 1
	// 轉帳 (send_tokens)
	TransactionTypeTransfer TransactionType = 2
)

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeCredit:
		return "credit"
	case TransactionTypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Transaction 交易 注意欄位排序以避免 Padding
type Transaction struct {
	// Sequence: 全局唯一的順序號 (由帳本套用時分配，1, 2, 3...)
	// 用於 WAL 重放與快照比對
	Sequence uint64
	// Amount: 金額
	Amount uint64
	// CreatedAt: 交易時間 (UnixNano)
	CreatedAt int64
	// TransactionID: 外部追蹤號 (UUID)，用於冪等
	TransactionID uuid.UUID
	// From: 扣款方，Credit 時為空
	From string
	// To: 入帳方
	To string
	// Type: 放到最後面，利用 Padding 空間
	Type TransactionType
}

// NewCredit 建立入帳交易
func NewCredit(id uuid.UUID, to string, amount uint64) *Transaction {
	return &Transaction{
		TransactionID: id,
		To:            to,
		Amount:        amount,
		Type:          TransactionTypeCredit,
	}
}

// NewTransfer 建立轉帳交易
func NewTransfer(id uuid.UUID, from, to string, amount uint64) *Transaction {
	return &Transaction{
		TransactionID: id,
		From:          from,
		To:            to,
		Amount:        amount,
		Type:          TransactionTypeTransfer,
	}
}

// SamePayload 比對兩筆交易的內容 (不含序號與時間)
// 重送同一筆交易時內容相同；TransactionID 被其他交易重用時內容不同
func (t *Transaction) SamePayload(other *Transaction) bool {
	return t.Type == other.Type &&
		t.From == other.From &&
		t.To == other.To &&
		t.Amount == other.Amount
}

// Validate 檢查交易結構是否完整 (不檢查餘額)
func (t *Transaction) Validate() error {
	switch t.Type {
	case TransactionTypeCredit:
	case TransactionTypeTransfer:
		if t.From == "" {
			return fmt.Errorf("%w: transfer without sender", ErrInvalidTransaction)
		}
	default:
		return fmt.Errorf("%w: type %s", ErrInvalidTransaction, t.Type)
	}
	if t.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidTransaction)
	}
	return nil
}

// GetLockOwners 回傳需要鎖定的帳號，並確保順序以避免死鎖
func (t *Transaction) GetLockOwners() (owners []string) {
	owners = make([]string, 0, 2)
	switch t.Type {
	case TransactionTypeTransfer:
		switch {
		case t.From == t.To:
			owners = append(owners, t.From)
		case t.From < t.To:
			owners = append(owners, t.From, t.To)
		default:
			owners = append(owners, t.To, t.From)
		}
	case TransactionTypeCredit:
		owners = append(owners, t.To)
	}
	return owners
}
