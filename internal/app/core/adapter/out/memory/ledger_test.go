package memory

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
)

type testLedger interface {
	usecase.Ledger
	Snapshot(ctx context.Context) error
}

type ledgerFactory func(t *testing.T, accounts map[string]*domain.Account, opts ...Option) testLedger

func newMutex(t *testing.T, accounts map[string]*domain.Account, opts ...Option) testLedger {
	t.Helper()
	l, err := NewMutexLedger(accounts, opts...)
	require.NoError(t, err)
	return l
}

func newLMAX(t *testing.T, accounts map[string]*domain.Account, opts ...Option) testLedger {
	t.Helper()
	l, err := NewLMAXLedger(accounts, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

var factories = map[string]ledgerFactory{
	"Mutex": newMutex,
	"LMAX":  newLMAX,
}

// forEachLedger 對兩種記憶體帳本跑相同的測試
func forEachLedger(t *testing.T, fn func(t *testing.T, newLedger ledgerFactory)) {
	for name, f := range factories {
		f := f
		t.Run(name, func(t *testing.T) {
			fn(t, f)
		})
	}
}

func credit(t *testing.T, l usecase.Ledger, owner string, amount uint64) error {
	t.Helper()
	return l.PostTransaction(context.Background(), domain.NewCredit(uuid.New(), owner, amount))
}

func transfer(t *testing.T, l usecase.Ledger, from, to string, amount uint64) error {
	t.Helper()
	return l.PostTransaction(context.Background(), domain.NewTransfer(uuid.New(), from, to, amount))
}

func balanceOf(t *testing.T, l usecase.Ledger, owner string) uint64 {
	t.Helper()
	b, err := l.GetAccountBalance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func TestLedgerScenario(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)

		require.Zero(balanceOf(t, l, "alice"))
		require.Zero(balanceOf(t, l, "nobody"))

		require.NoError(credit(t, l, "alice", 100))
		require.Equal(uint64(100), balanceOf(t, l, "alice"))

		require.NoError(transfer(t, l, "alice", "bob", 50))
		require.Equal(uint64(50), balanceOf(t, l, "alice"))
		require.Equal(uint64(50), balanceOf(t, l, "bob"))

		require.ErrorIs(transfer(t, l, "alice", "bob", 100), domain.ErrInsufficientBalance)
		require.Equal(uint64(50), balanceOf(t, l, "alice"))
		require.Equal(uint64(50), balanceOf(t, l, "bob"))
	})
}

func TestLedgerTransferRules(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		tests := map[string]struct {
			from, to    string
			amount      uint64
			wantErr     error
			wantFrom    uint64
			wantTo      uint64
			toPreexists bool
		}{
			"PartialToNewAccount": {from: "alice", to: "bob", amount: 40, wantFrom: 60, wantTo: 40},
			"AllToExisting":       {from: "alice", to: "carol", amount: 100, wantFrom: 0, wantTo: 105, toPreexists: true},
			"ZeroAmount":          {from: "alice", to: "carol", amount: 0, wantFrom: 100, wantTo: 5, toPreexists: true},
			"Insufficient":        {from: "alice", to: "carol", amount: 101, wantErr: domain.ErrInsufficientBalance, wantFrom: 100, wantTo: 5, toPreexists: true},
			"SenderNotFound":      {from: "mallory", to: "carol", amount: 1, wantErr: domain.ErrAccountNotFound, wantTo: 5, toPreexists: true},
			"SenderNotFoundZero":  {from: "mallory", to: "carol", amount: 0, wantErr: domain.ErrAccountNotFound, wantTo: 5, toPreexists: true},
		}
		for name, tt := range tests {
			t.Run(name, func(t *testing.T) {
				require := require.New(t)
				l := newLedger(t, map[string]*domain.Account{
					"alice": domain.NewAccount("alice", 100),
					"carol": domain.NewAccount("carol", 5),
				})

				err := transfer(t, l, tt.from, tt.to, tt.amount)
				if tt.wantErr != nil {
					require.ErrorIs(err, tt.wantErr)
				} else {
					require.NoError(err)
				}
				require.Equal(tt.wantFrom, balanceOf(t, l, tt.from))
				require.Equal(tt.wantTo, balanceOf(t, l, tt.to))

				accounts, err := l.LoadAllAccounts(context.Background())
				require.NoError(err)
				var total uint64
				for _, a := range accounts {
					total += a.Balance
				}
				require.Equal(uint64(105), total)
			})
		}
	})
}

func TestLedgerFailedTransferCreatesNoRecipient(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, map[string]*domain.Account{"alice": domain.NewAccount("alice", 1)})

		require.ErrorIs(transfer(t, l, "alice", "bob", 2), domain.ErrInsufficientBalance)
		accounts, err := l.LoadAllAccounts(context.Background())
		require.NoError(err)
		require.NotContains(accounts, "bob")
	})
}

func TestLedgerSelfTransfer(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, map[string]*domain.Account{"alice": domain.NewAccount("alice", 30)})

		require.NoError(transfer(t, l, "alice", "alice", 30))
		require.Equal(uint64(30), balanceOf(t, l, "alice"))

		// 即使是自己，也要經過餘額檢查
		require.ErrorIs(transfer(t, l, "alice", "alice", 31), domain.ErrInsufficientBalance)
		require.Equal(uint64(30), balanceOf(t, l, "alice"))
	})
}

func TestLedgerSelfTransferAtMaxBalance(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, map[string]*domain.Account{"alice": domain.NewAccount("alice", math.MaxUint64)})

		require.NoError(transfer(t, l, "alice", "alice", math.MaxUint64))
		require.Equal(uint64(math.MaxUint64), balanceOf(t, l, "alice"))
	})
}

func TestLedgerCredit(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)

		require.NoError(credit(t, l, "x", 0))
		require.Zero(balanceOf(t, l, "x"))

		// credit(x,a); credit(x,b) == credit(y,a+b)
		require.NoError(credit(t, l, "x", 7))
		require.NoError(credit(t, l, "x", 35))
		require.NoError(credit(t, l, "y", 42))
		require.Equal(balanceOf(t, l, "y"), balanceOf(t, l, "x"))

		require.NoError(credit(t, l, "x", 0))
		require.Equal(uint64(42), balanceOf(t, l, "x"))
	})
}

func TestLedgerZeroCreditCreatesRecord(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)

		require.ErrorIs(transfer(t, l, "x", "y", 0), domain.ErrAccountNotFound)
		require.NoError(credit(t, l, "x", 0))
		require.NoError(transfer(t, l, "x", "y", 0))
	})
}

func TestLedgerOverflow(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, map[string]*domain.Account{
			"rich":  domain.NewAccount("rich", math.MaxUint64),
			"alice": domain.NewAccount("alice", 10),
		})

		require.ErrorIs(credit(t, l, "rich", 1), domain.ErrOverflow)
		require.Equal(uint64(math.MaxUint64), balanceOf(t, l, "rich"))

		require.ErrorIs(transfer(t, l, "alice", "rich", 1), domain.ErrOverflow)
		require.Equal(uint64(10), balanceOf(t, l, "alice"))
		require.Equal(uint64(math.MaxUint64), balanceOf(t, l, "rich"))

		require.NoError(transfer(t, l, "rich", "alice", 5))
		require.Equal(uint64(15), balanceOf(t, l, "alice"))
	})
}

func TestLedgerIdempotentTransaction(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)
		ctx := context.Background()
		id := uuid.New()

		first := domain.NewCredit(id, "alice", 10)
		require.NoError(l.PostTransaction(ctx, first))
		require.Equal(uint64(1), first.Sequence)

		again := domain.NewCredit(id, "alice", 10)
		require.NoError(l.PostTransaction(ctx, again))
		require.Zero(again.Sequence)
		require.Equal(uint64(10), balanceOf(t, l, "alice"))
	})
}

func TestLedgerRejectsReusedTransactionID(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)
		ctx := context.Background()
		require.NoError(credit(t, l, "alice", 100))
		require.NoError(credit(t, l, "bob", 100))

		id := uuid.New()
		require.NoError(l.PostTransaction(ctx, domain.NewTransfer(id, "alice", "carol", 10)))

		// 其他人重用同一個 id 不能被當成重送
		reused := domain.NewTransfer(id, "bob", "dave", 30)
		require.ErrorIs(l.PostTransaction(ctx, reused), domain.ErrTransactionConflict)
		require.Zero(reused.Sequence)
		require.Equal(uint64(100), balanceOf(t, l, "bob"))
		require.Zero(balanceOf(t, l, "dave"))

		// 內容相同才是重送
		require.NoError(l.PostTransaction(ctx, domain.NewTransfer(id, "alice", "carol", 10)))
		require.Equal(uint64(90), balanceOf(t, l, "alice"))
		require.Equal(uint64(10), balanceOf(t, l, "carol"))
	})
}

func TestLedgerRejectsInvalidTransaction(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		l := newLedger(t, nil)
		err := l.PostTransaction(context.Background(), &domain.Transaction{TransactionID: uuid.New(), To: "a", Type: 42})
		require.ErrorIs(t, err, domain.ErrInvalidTransaction)
	})
}

func TestLedgerLoadAllAccountsReturnsCopies(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, nil)
		require.NoError(credit(t, l, "alice", 5))

		accounts, err := l.LoadAllAccounts(context.Background())
		require.NoError(err)
		accounts["alice"].Balance = 1000
		require.Equal(uint64(5), balanceOf(t, l, "alice"))
	})
}

func TestLedgerConcurrentTransfersConserveSupply(t *testing.T) {
	forEachLedger(t, func(t *testing.T, newLedger ledgerFactory) {
		require := require.New(t)
		l := newLedger(t, map[string]*domain.Account{
			"a": domain.NewAccount("a", 1000),
			"b": domain.NewAccount("b", 1000),
		})

		const n = 200
		var wg sync.WaitGroup
		wg.Add(2 * n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if err := transfer(t, l, "a", "b", 1); err != nil {
					t.Errorf("a->b: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				if err := transfer(t, l, "b", "a", 1); err != nil {
					t.Errorf("b->a: %v", err)
				}
			}()
		}
		wg.Wait()

		require.Equal(uint64(2000), balanceOf(t, l, "a")+balanceOf(t, l, "b"))
	})
}
