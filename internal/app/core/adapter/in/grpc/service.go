package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "ledger.v1.TokenLedger"

	methodSendTokens    = "/" + ServiceName + "/SendTokens"
	methodReceiveTokens = "/" + ServiceName + "/ReceiveTokens"
	methodGetBalance    = "/" + ServiceName + "/GetBalance"
)

// SendTokensRequest 由 caller 轉帳給 To
type SendTokensRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	RefID  string `json:"ref_id,omitempty"` // 選填，UUID 格式，用於冪等
}

// ReceiveTokensRequest 入帳到 caller；From 只為相容保留，不參與任何檢查
type ReceiveTokensRequest struct {
	From   string `json:"from,omitempty"`
	Amount uint64 `json:"amount"`
	RefID  string `json:"ref_id,omitempty"`
}

type GetBalanceRequest struct{}

// BalanceResponse 三個 RPC 共用的回應：caller 操作後的餘額
type BalanceResponse struct {
	Balance uint64 `json:"balance"`
}

// TokenLedgerServer 是 ledger.v1.TokenLedger 的服務端介面
type TokenLedgerServer interface {
	SendTokens(ctx context.Context, req *SendTokensRequest) (*BalanceResponse, error)
	ReceiveTokens(ctx context.Context, req *ReceiveTokensRequest) (*BalanceResponse, error)
	GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceResponse, error)
}

// RegisterTokenLedgerServer 將服務註冊到 gRPC Server
func RegisterTokenLedgerServer(s grpc.ServiceRegistrar, srv TokenLedgerServer) {
	s.RegisterService(&TokenLedgerServiceDesc, srv)
}

func sendTokensHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendTokensRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenLedgerServer).SendTokens(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSendTokens}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenLedgerServer).SendTokens(ctx, req.(*SendTokensRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func receiveTokensHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReceiveTokensRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenLedgerServer).ReceiveTokens(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReceiveTokens}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenLedgerServer).ReceiveTokens(ctx, req.(*ReceiveTokensRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBalanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenLedgerServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetBalance}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenLedgerServer).GetBalance(ctx, req.(*GetBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenLedgerServiceDesc 手寫的 ServiceDesc，訊息以 JSON codec 編碼
var TokenLedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendTokens", Handler: sendTokensHandler},
		{MethodName: "ReceiveTokens", Handler: receiveTokensHandler},
		{MethodName: "GetBalance", Handler: getBalanceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/token_ledger",
}
