package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountCreditDebit(t *testing.T) {
	require := require.New(t)

	a := NewAccount("alice", 100)
	require.NoError(a.Credit(0))
	require.Equal(uint64(100), a.Balance)

	require.NoError(a.Debit(100))
	require.Equal(uint64(0), a.Balance)

	require.ErrorIs(a.Debit(1), ErrInsufficientBalance)
	require.Equal(uint64(0), a.Balance)
}

func TestAccountCreditOverflow(t *testing.T) {
	require := require.New(t)

	a := NewAccount("alice", math.MaxUint64-1)
	require.NoError(a.Credit(1))
	require.Equal(uint64(math.MaxUint64), a.Balance)

	require.ErrorIs(a.Credit(1), ErrOverflow)
	require.Equal(uint64(math.MaxUint64), a.Balance)
}

func TestTransactionValidate(t *testing.T) {
	tests := map[string]struct {
		tran    *Transaction
		wantErr error
	}{
		"Credit":           {tran: NewCredit([16]byte{1}, "alice", 10)},
		"Transfer":         {tran: NewTransfer([16]byte{1}, "alice", "bob", 10)},
		"SelfTransfer":     {tran: NewTransfer([16]byte{1}, "alice", "alice", 10)},
		"MissingRecipient": {tran: NewCredit([16]byte{1}, "", 10), wantErr: ErrInvalidTransaction},
		"TransferNoSender": {tran: NewTransfer([16]byte{1}, "", "bob", 10), wantErr: ErrInvalidTransaction},
		"UnknownType":      {tran: &Transaction{To: "bob", Type: 9}, wantErr: ErrInvalidTransaction},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.tran.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetLockOwnersOrdered(t *testing.T) {
	require := require.New(t)

	require.Equal([]string{"alice", "bob"}, NewTransfer([16]byte{}, "bob", "alice", 1).GetLockOwners())
	require.Equal([]string{"alice", "bob"}, NewTransfer([16]byte{}, "alice", "bob", 1).GetLockOwners())
	require.Equal([]string{"alice"}, NewTransfer([16]byte{}, "alice", "alice", 1).GetLockOwners())
	require.Equal([]string{"carol"}, NewCredit([16]byte{}, "carol", 1).GetLockOwners())
}

func TestTransactionSamePayload(t *testing.T) {
	require := require.New(t)
	id := [16]byte{7}

	original := NewTransfer(id, "alice", "carol", 10)
	original.Sequence = 3
	original.CreatedAt = 42

	require.True(original.SamePayload(NewTransfer(id, "alice", "carol", 10)))
	require.False(original.SamePayload(NewTransfer(id, "bob", "carol", 10)))
	require.False(original.SamePayload(NewTransfer(id, "alice", "dave", 10)))
	require.False(original.SamePayload(NewTransfer(id, "alice", "carol", 11)))
	require.False(original.SamePayload(NewCredit(id, "carol", 10)))
}
