package rpc

import (
	"context"
	"time"
)

// Observer receives one callback per node call.
type Observer interface {
	RecordRPCCall(method string, err error, durationSeconds float64)
}

type instrumented struct {
	next     Client
	observer Observer
}

// Instrument reports every call made through c to observer.
func Instrument(c Client, observer Observer) Client {
	return &instrumented{next: c, observer: observer}
}

func (i *instrumented) record(method string, start time.Time, err error) {
	i.observer.RecordRPCCall(method, err, time.Since(start).Seconds())
}

func (i *instrumented) CurrentHeight(ctx context.Context) (uint64, error) {
	start := time.Now()
	h, err := i.next.CurrentHeight(ctx)
	i.record("CurrentHeight", start, err)
	return h, err
}

func (i *instrumented) BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*Block, error) {
	start := time.Now()
	b, err := i.next.BlockByNumber(ctx, height, includeTransactions)
	i.record("BlockByNumber", start, err)
	return b, err
}

func (i *instrumented) TransactionsByHeight(ctx context.Context, height uint64) ([]Transaction, error) {
	start := time.Now()
	txs, err := i.next.TransactionsByHeight(ctx, height)
	i.record("TransactionsByHeight", start, err)
	return txs, err
}

func (i *instrumented) InherentsByHeight(ctx context.Context, height uint64) ([]Inherent, error) {
	start := time.Now()
	out, err := i.next.InherentsByHeight(ctx, height)
	i.record("InherentsByHeight", start, err)
	return out, err
}

func (i *instrumented) Account(ctx context.Context, address string) (*AccountSnapshot, error) {
	start := time.Now()
	acc, err := i.next.Account(ctx, address)
	i.record("Account", start, err)
	return acc, err
}

func (i *instrumented) MempoolHashes(ctx context.Context) ([]string, error) {
	start := time.Now()
	hashes, err := i.next.MempoolHashes(ctx)
	i.record("MempoolHashes", start, err)
	return hashes, err
}

func (i *instrumented) MempoolTransactions(ctx context.Context) ([]Transaction, error) {
	start := time.Now()
	txs, err := i.next.MempoolTransactions(ctx)
	i.record("MempoolTransactions", start, err)
	return txs, err
}

func (i *instrumented) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	start := time.Now()
	tx, err := i.next.TransactionByHash(ctx, hash)
	i.record("TransactionByHash", start, err)
	return tx, err
}

func (i *instrumented) SendRawTransaction(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	hash, err := i.next.SendRawTransaction(ctx, raw)
	i.record("SendRawTransaction", start, err)
	return hash, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
