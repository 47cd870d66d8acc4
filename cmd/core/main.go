package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	grpc_adapter "github.com/JoeShih716/go-token-ledger/internal/app/core/adapter/in/grpc"
	kafka_adapter "github.com/JoeShih716/go-token-ledger/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-token-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-token-ledger/internal/config"
	"github.com/JoeShih716/go-token-ledger/pkg/kafka"
	"github.com/JoeShih716/go-token-ledger/pkg/logger"
)

func main() {
	parser := argparse.NewParser("core", "token ledger gRPC server")
	configPath := parser.String("c", "config", &argparse.Options{
		Help:    "path to the yaml config file",
		Default: "config/config.yaml",
	})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer closeLog()

	if err := run(cfg, zl); err != nil {
		zl.Error("server exited with error", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
	zl.Info("server exited")
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化帳本 (MySQL / Mutex / LMAX)
	ledger, err := buildLedger(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer ledger.close()

	// 3. 指標
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := usecase.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// 4. 初始化 UseCase
	opts := []usecase.Option{
		usecase.WithMetrics(metrics),
		usecase.WithLogger(zl.Named("core")),
	}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer producer.Close()
		opts = append(opts, usecase.WithPublisher(kafka_adapter.NewEventPublisher(producer)))
		zl.Info("publishing ledger events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	coreUseCase := usecase.NewCoreUseCase(ledger, opts...)
	supply, err := coreUseCase.SyncSupply(ctx)
	if err != nil {
		return fmt.Errorf("sync total supply: %w", err)
	}
	zl.Info("ledger ready", zap.String("backend", string(cfg.Ledger.Backend)), zap.Uint64("total_supply", supply))

	// 5. 初始化 gRPC Adapter (Driving Adapter)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	s := grpc_adapter.NewServer(coreUseCase, zl.Named("grpc"))

	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			if !ledger.healthy() {
				http.Error(w, "ledger stopped", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		})
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting gRPC server", zap.String("addr", cfg.Server.GRPCAddr))
		return s.Serve(lis)
	})
	if httpServer != nil {
		g.Go(func() error {
			zl.Info("starting http server", zap.String("addr", cfg.Server.HTTPAddr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if ledger.snapshotter != nil && cfg.Ledger.SnapshotInterval > 0 {
		g.Go(func() error {
			runSnapshots(gctx, ledger.snapshotter, cfg.Ledger.SnapshotInterval, zl)
			return nil
		})
	}

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		s.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// runSnapshots 定期保存快照並清空 WAL
func runSnapshots(ctx context.Context, s snapshotter, interval time.Duration, zl *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				zl.Error("periodic snapshot failed", zap.Error(err))
			}
		}
	}
}
