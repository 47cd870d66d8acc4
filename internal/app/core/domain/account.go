package domain

import "math"

// Account 帳戶紀錄，Owner 為唯一識別 (由 Host 提供的呼叫者身分)
type Account struct {
	Owner   string
	Balance uint64
}

func NewAccount(owner string, balance uint64) *Account {
	return &Account{
		Owner:   owner,
		Balance: balance,
	}
}

// CanCredit 檢查入帳後是否會溢位
func (a *Account) CanCredit(amount uint64) error {
	if a.Balance > math.MaxUint64-amount {
		return ErrOverflow
	}
	return nil
}

// CanDebit 檢查餘額是否足夠扣款
func (a *Account) CanDebit(amount uint64) error {
	if a.Balance < amount {
		return ErrInsufficientBalance
	}
	return nil
}

// Credit 入帳
func (a *Account) Credit(amount uint64) error {
	if err := a.CanCredit(amount); err != nil {
		return err
	}
	a.Balance += amount
	return nil
}

// Debit 扣款，餘額不足時不變更狀態
func (a *Account) Debit(amount uint64) error {
	if err := a.CanDebit(amount); err != nil {
		return err
	}
	a.Balance -= amount
	return nil
}
