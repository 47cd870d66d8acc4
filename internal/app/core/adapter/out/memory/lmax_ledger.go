package memory

import (
	"context"
	"sync"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
)

type requestKind uint8

const (
	requestPost requestKind = iota
	requestBalance
	requestAccounts
	requestSnapshot
)

// ledgerRequest 請求包裝channel，讓呼叫端可以等待結果
type ledgerRequest struct {
	kind  requestKind
	tran  *domain.Transaction
	owner string

	balance  uint64
	accounts map[string]*domain.Account

	// collect 在結果回來後取出查詢欄位
	collect func(*ledgerRequest)
	Result  chan error // 呼叫端等這個 channel
}

// LMAXLedger 單一 goroutine 處理所有交易與查詢，帳本狀態不需要鎖
type LMAXLedger struct {
	book *accountBook
	// 輸送帶 負責接收請求
	requests chan *ledgerRequest
	// run loop 結束後關閉
	done chan struct{}
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	startOnce   sync.Once
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，需呼叫 Start 才會開始處理
//
// 參數:
//
//	accounts: 初始帳戶資料 Map
//	opts: WAL、快照、Logger、輸送帶容量
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
//	error: 初始化錯誤
func NewLMAXLedger(accounts map[string]*domain.Account, opts ...Option) (*LMAXLedger, error) {
	o := newOptions(opts)
	ledger := &LMAXLedger{
		book:     newAccountBook(accounts, o),
		requests: make(chan *ledgerRequest, o.channelSize),
		done:     make(chan struct{}),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &ledgerRequest{
					Result: make(chan error, 1),
				}
			},
		},
	}

	// 在啟動前先恢復資料
	if err := ledger.book.recover(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Start 啟動核心引擎 (非同步)，ctx 結束時處理完剩下的請求後停止
func (l *LMAXLedger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// Done run loop 結束時關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.done
}

// PostTransaction 接收交易請求
//
// PostTransaction(等待) -> Channel -> Run Loop (核心) -> WAL -> Map Update -> Result Channel -> PostTransaction(收到結果)
func (l *LMAXLedger) PostTransaction(ctx context.Context, tran *domain.Transaction) error {
	req := l.acquire(requestPost)
	req.tran = tran
	return l.do(ctx, req)
}

// GetAccountBalance 查詢也走輸送帶，確保看到的是完整套用後的狀態
func (l *LMAXLedger) GetAccountBalance(ctx context.Context, owner string) (uint64, error) {
	var balance uint64
	req := l.acquire(requestBalance)
	req.owner = owner
	req.collect = func(r *ledgerRequest) { balance = r.balance }
	if err := l.do(ctx, req); err != nil {
		return 0, err
	}
	return balance, nil
}

// LoadAllAccounts 回傳所有帳戶的副本
func (l *LMAXLedger) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	var accounts map[string]*domain.Account
	req := l.acquire(requestAccounts)
	req.collect = func(r *ledgerRequest) { accounts = r.accounts }
	if err := l.do(ctx, req); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Snapshot 在 run loop 內保存快照並清空 WAL
func (l *LMAXLedger) Snapshot(ctx context.Context) error {
	return l.do(ctx, l.acquire(requestSnapshot))
}

// do 送出請求並等待結果
// 請求已進入輸送帶但沒有等到結果時 (停止或 ctx 取消)，該請求不放回 Pool
func (l *LMAXLedger) do(ctx context.Context, req *ledgerRequest) error {
	if err := l.submit(ctx, req); err != nil {
		l.release(req)
		return err
	}
	select {
	case err := <-req.Result:
		l.finish(req)
		return err
	case <-l.done:
		select {
		case err := <-req.Result:
			l.finish(req)
			return err
		default:
			return domain.ErrLedgerStopped
		}
	case <-ctx.Done():
		// 請求仍可能在之後被套用，需靠 TransactionID 冪等重送
		return ctx.Err()
	}
}

func (l *LMAXLedger) finish(req *ledgerRequest) {
	if req.collect != nil {
		req.collect(req)
	}
	l.release(req)
}

func (l *LMAXLedger) acquire(kind requestKind) *ledgerRequest {
	req := l.requestPool.Get().(*ledgerRequest)
	req.kind = kind
	// 清空 Channel (理論上應該是空的)
	select {
	case <-req.Result:
	default:
	}
	return req
}

func (l *LMAXLedger) release(req *ledgerRequest) {
	req.tran = nil
	req.owner = ""
	req.balance = 0
	req.accounts = nil
	req.collect = nil
	l.requestPool.Put(req)
}

// submit 放入輸送帶；帳本已停止或 ctx 取消時回傳錯誤
func (l *LMAXLedger) submit(ctx context.Context, req *ledgerRequest) error {
	select {
	case <-l.done:
		return domain.ErrLedgerStopped
	default:
	}
	select {
	case l.requests <- req:
		return nil
	case <-l.done:
		return domain.ErrLedgerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			l.process(req)
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.requests:
			l.process(req)
		default:
			return
		}
	}
}

// process 處理單筆請求並回傳結果
func (l *LMAXLedger) process(req *ledgerRequest) {
	var err error
	switch req.kind {
	case requestPost:
		err = l.book.post(req.tran)
	case requestBalance:
		req.balance = l.book.balance(req.owner)
	case requestAccounts:
		req.accounts = l.book.copyAccounts()
	case requestSnapshot:
		err = l.book.snapshot()
	}
	req.Result <- err
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
