package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CallerMetadataKey 由呼叫端 (host) 填入已驗證的帳號
const CallerMetadataKey = "x-caller-id"

type callerKey struct{}

// CallerFromContext 取出 interceptor 放入的 caller
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok && caller != ""
}

// WithCaller 將 caller 放入 context (測試或內部呼叫使用)
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerInterceptor 從 metadata 取得 caller，缺少時回傳 Unauthenticated
func CallerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(CallerMetadataKey)
		if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			return nil, status.Error(codes.Unauthenticated, "missing caller identity")
		}
		return handler(WithCaller(ctx, values[0]), req)
	}
}

// OutgoingCallerInterceptor 客戶端攔截器，替每個請求附上 caller
func OutgoingCallerInterceptor(caller string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, CallerMetadataKey, caller)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
