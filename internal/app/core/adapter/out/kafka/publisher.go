package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
)

// Sender 由 pkg/kafka.Producer 實作
type Sender interface {
	Send(ctx context.Context, key []byte, value []byte) error
}

// LedgerEvent 對外發送的交易事件格式
type LedgerEvent struct {
	Type      string `json:"type"`
	Sequence  uint64 `json:"sequence"`
	RefID     string `json:"ref_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	CreatedAt int64  `json:"created_at"`
}

// EventPublisher 將已套用的交易送進 Kafka，以入帳方作為 key
type EventPublisher struct {
	sender Sender
}

func NewEventPublisher(sender Sender) *EventPublisher {
	return &EventPublisher{sender: sender}
}

func (p *EventPublisher) Publish(ctx context.Context, tran *domain.Transaction) error {
	event := LedgerEvent{
		Type:      tran.Type.String(),
		Sequence:  tran.Sequence,
		RefID:     tran.TransactionID.String(),
		From:      tran.From,
		To:        tran.To,
		Amount:    tran.Amount,
		CreatedAt: tran.CreatedAt,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	return p.sender.Send(ctx, []byte(tran.To), value)
}

var _ usecase.EventPublisher = (*EventPublisher)(nil)
