package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
)

type GrpcServer struct {
	core   *usecase.CoreUseCase
	logger *zap.Logger
}

func NewGrpcServer(core *usecase.CoreUseCase, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		core:   core,
		logger: logger,
	}
}

// NewServer 建立掛好攔截器與服務的 *grpc.Server
func NewServer(core *usecase.CoreUseCase, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewGrpcServer(core, logger)
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(srv.loggingInterceptor, CallerInterceptor()),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterTokenLedgerServer(s, srv)
	return s
}

// SendTokens caller 轉帳給 req.To，回傳 caller 轉帳後的餘額
func (s *GrpcServer) SendTokens(ctx context.Context, req *SendTokensRequest) (*BalanceResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	// 1. UUID 解析
	refID, err := parseRefID(req.RefID)
	if err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, status.Error(codes.InvalidArgument, "recipient is required")
	}

	// 2. 執行交易
	balance, err := s.core.Transfer(ctx, caller, req.To, req.Amount, refID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceResponse{Balance: balance}, nil
}

// ReceiveTokens 無條件入帳到 caller，req.From 不參與
func (s *GrpcServer) ReceiveTokens(ctx context.Context, req *ReceiveTokensRequest) (*BalanceResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	refID, err := parseRefID(req.RefID)
	if err != nil {
		return nil, err
	}

	balance, err := s.core.Credit(ctx, caller, req.Amount, refID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceResponse{Balance: balance}, nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, _ *GetBalanceRequest) (*BalanceResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.core.BalanceOf(ctx, caller)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceResponse{Balance: balance}, nil
}

func (s *GrpcServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Stringer("code", code),
		zap.Duration("elapsed", time.Since(start)),
	}
	if code == codes.Internal || code == codes.Unknown {
		s.logger.Error("rpc failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("rpc", fields...)
	}
	return resp, err
}

func callerOf(ctx context.Context) (string, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing caller identity")
	}
	return caller, nil
}

// parseRefID 空字串代表不需要冪等，由 usecase 產生新的 ID
func parseRefID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "invalid ref_id: "+err.Error())
	}
	return u, nil
}

// toStatus 將 domain 錯誤轉為 gRPC status
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, "Insufficient balance")
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, "Sender not found")
	case errors.Is(err, domain.ErrOverflow):
		return status.Error(codes.OutOfRange, "Balance overflow")
	case errors.Is(err, domain.ErrTransactionConflict):
		return status.Error(codes.AlreadyExists, "ref_id already used")
	case errors.Is(err, domain.ErrInvalidTransaction):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrLedgerStopped):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var _ TokenLedgerServer = (*GrpcServer)(nil)
