package domain

import "errors"

var (
	// ErrInsufficientBalance 餘額不足
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound 找不到帳戶 (轉出方沒有紀錄)
	ErrAccountNotFound = errors.New("account not found")

	// ErrOverflow 入帳後餘額超過 uint64 上限
	ErrOverflow = errors.New("balance overflow")

	// ErrTransactionConflict 同一個 TransactionID 已用於內容不同的交易
	ErrTransactionConflict = errors.New("transaction id already used")

	// ErrInvalidTransaction 交易內容不合法 (未知類型、缺少帳戶)
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrSnapshotFailed 建立快照失敗
	ErrSnapshotFailed = errors.New("snapshot failed")

	// ErrLedgerStopped 帳本已停止接收交易
	ErrLedgerStopped = errors.New("ledger stopped")

	// ErrSelectTransactionFailed 查詢交易失敗
	ErrSelectTransactionFailed = errors.New("select transaction failed")
)
