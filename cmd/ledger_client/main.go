package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akamensky/argparse"
	"github.com/google/uuid"

	grpc_adapter "github.com/JoeShih716/go-token-ledger/internal/app/core/adapter/in/grpc"
	grpcpool "github.com/JoeShih716/go-token-ledger/pkg/grpc"
)

func main() {
	parser := argparse.NewParser("ledger_client", "token ledger command line client")
	addr := parser.String("a", "addr", &argparse.Options{Help: "ledger gRPC address", Default: "localhost:50051"})
	caller := parser.String("u", "caller", &argparse.Options{Help: "caller identity sent as x-caller-id", Required: true})
	timeout := parser.Int("t", "timeout", &argparse.Options{Help: "request timeout in seconds", Default: 10})

	sendCmd := parser.NewCommand("send", "transfer tokens from the caller to another account")
	sendTo := sendCmd.String("", "to", &argparse.Options{Help: "recipient", Required: true})
	sendAmount := sendCmd.Int("", "amount", &argparse.Options{Help: "amount", Required: true})
	sendRef := sendCmd.String("", "ref", &argparse.Options{Help: "idempotency ref_id (uuid)"})

	receiveCmd := parser.NewCommand("receive", "credit tokens to the caller")
	receiveFrom := receiveCmd.String("", "from", &argparse.Options{Help: "informational only"})
	receiveAmount := receiveCmd.Int("", "amount", &argparse.Options{Help: "amount", Required: true})
	receiveRef := receiveCmd.String("", "ref", &argparse.Options{Help: "idempotency ref_id (uuid)"})

	balanceCmd := parser.NewCommand("balance", "show the caller's balance")

	benchCmd := parser.NewCommand("bench", "send many receive requests concurrently and report TPS")
	benchCount := benchCmd.Int("n", "count", &argparse.Options{Help: "total requests", Default: 100000})
	benchConcurrency := benchCmd.Int("c", "concurrency", &argparse.Options{Help: "in-flight requests", Default: 100})
	benchAmount := benchCmd.Int("", "amount", &argparse.Options{Help: "amount per request", Default: 1})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(2)
	}

	for _, amount := range []int{*sendAmount, *receiveAmount, *benchAmount} {
		if amount < 0 {
			exit(fmt.Errorf("amount must not be negative: %d", amount))
		}
	}

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(grpc_adapter.OutgoingCallerInterceptor(*caller)))
	defer pool.Close()
	conn, err := pool.GetConnection(*addr)
	if err != nil {
		exit(err)
	}
	client := grpc_adapter.NewLedgerClient(conn)

	if benchCmd.Happened() {
		runBench(client, *benchCount, *benchConcurrency, uint64(*benchAmount))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	var resp *grpc_adapter.BalanceResponse
	switch {
	case sendCmd.Happened():
		resp, err = client.SendTokens(ctx, &grpc_adapter.SendTokensRequest{
			To:     *sendTo,
			Amount: uint64(*sendAmount),
			RefID:  *sendRef,
		})
	case receiveCmd.Happened():
		resp, err = client.ReceiveTokens(ctx, &grpc_adapter.ReceiveTokensRequest{
			From:   *receiveFrom,
			Amount: uint64(*receiveAmount),
			RefID:  *receiveRef,
		})
	case balanceCmd.Happened():
		resp, err = client.GetBalance(ctx)
	}
	if err != nil {
		exit(err)
	}
	fmt.Printf("%s balance: %d\n", *caller, resp.Balance)
}

// runBench 每個請求都帶新的 ref_id，避免被當成重複交易
func runBench(client *grpc_adapter.LedgerClient, total, concurrency int, amount uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var failed atomic.Int64
	sem := make(chan struct{}, concurrency)
	startTime := time.Now()

	for i := 0; i < total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := client.ReceiveTokens(ctx, &grpc_adapter.ReceiveTokensRequest{
				Amount: amount,
				RefID:  uuid.NewString(),
			})
			if err != nil {
				if failed.Add(1) == 1 || idx%10000 == 0 {
					fmt.Fprintf(os.Stderr, "request %d failed: %v\n", idx, err)
				}
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests (%d failed) in %v\n", total, failed.Load(), elapsed)
	fmt.Printf("TPS: %.2f\n", float64(total)/elapsed.Seconds())
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
