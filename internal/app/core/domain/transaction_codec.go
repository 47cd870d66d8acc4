package domain

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// WAL 內的交易以 protobuf wire format 編碼，欄位編號固定不可重用
const (
	fieldSequence      protowire.Number = 1
	fieldType          protowire.Number = 2
	fieldFrom          protowire.Number = 3
	fieldTo            protowire.Number = 4
	fieldAmount        protowire.Number = 5
	fieldCreatedAt     protowire.Number = 6
	fieldTransactionID protowire.Number = 7
)

// MarshalBinary 將交易編碼為 protobuf wire format
func (t *Transaction) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 64+len(t.From)+len(t.To))
	b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, t.Sequence)
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Type))
	if t.From != "" {
		b = protowire.AppendTag(b, fieldFrom, protowire.BytesType)
		b = protowire.AppendString(b, t.From)
	}
	b = protowire.AppendTag(b, fieldTo, protowire.BytesType)
	b = protowire.AppendString(b, t.To)
	b = protowire.AppendTag(b, fieldAmount, protowire.VarintType)
	b = protowire.AppendVarint(b, t.Amount)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.CreatedAt))
	b = protowire.AppendTag(b, fieldTransactionID, protowire.BytesType)
	b = protowire.AppendBytes(b, t.TransactionID[:])
	return b, nil
}

// UnmarshalBinary 解析 MarshalBinary 的輸出，未知欄位略過
func (t *Transaction) UnmarshalBinary(b []byte) error {
	*t = Transaction{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode transaction tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldSequence || num == fieldType || num == fieldAmount || num == fieldCreatedAt):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("decode transaction field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldSequence:
				t.Sequence = v
			case fieldType:
				t.Type = TransactionType(v)
			case fieldAmount:
				t.Amount = v
			case fieldCreatedAt:
				t.CreatedAt = int64(v)
			}
		case typ == protowire.BytesType && (num == fieldFrom || num == fieldTo || num == fieldTransactionID):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("decode transaction field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldFrom:
				t.From = string(v)
			case fieldTo:
				t.To = string(v)
			case fieldTransactionID:
				id, err := uuid.FromBytes(v)
				if err != nil {
					return fmt.Errorf("decode transaction id: %w", err)
				}
				t.TransactionID = id
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skip transaction field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
