package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// LedgerClient 是 ledger.v1.TokenLedger 的客戶端
// caller 由連線上的 OutgoingCallerInterceptor 或呼叫端自行放入 metadata
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) SendTokens(ctx context.Context, req *SendTokensRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	out := new(BalanceResponse)
	if err := c.cc.Invoke(ctx, methodSendTokens, req, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) ReceiveTokens(ctx context.Context, req *ReceiveTokensRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	out := new(BalanceResponse)
	if err := c.cc.Invoke(ctx, methodReceiveTokens, req, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetBalance(ctx context.Context, opts ...grpc.CallOption) (*BalanceResponse, error) {
	out := new(BalanceResponse)
	if err := c.cc.Invoke(ctx, methodGetBalance, &GetBalanceRequest{}, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
