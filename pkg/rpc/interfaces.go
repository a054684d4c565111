package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client captures the node calls used by the sync engine and mempool tracker.
// Lookups of a single block or transaction return nil (and no error) when the node does not know it.
type Client interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*Block, error)
	TransactionsByHeight(ctx context.Context, height uint64) ([]Transaction, error)
	InherentsByHeight(ctx context.Context, height uint64) ([]Inherent, error)
	Account(ctx context.Context, address string) (*AccountSnapshot, error)
	MempoolHashes(ctx context.Context) ([]string, error)
	MempoolTransactions(ctx context.Context) ([]Transaction, error)
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	SendRawTransaction(ctx context.Context, raw string) (string, error)
	Close() error
}

// Protocol selects the response dialect of the node.
type Protocol string

const (
	ProtocolPoW       Protocol = "pow"
	ProtocolAlbatross Protocol = "albatross"
)

// Transport selects the call framing.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "ws"
)

// Config selects and configures a Client.
type Config struct {
	URL       string
	Username  string
	Password  string
	Protocol  Protocol
	Transport Transport
	RPS       int
	Timeout   time.Duration
}

// New builds the Client for the configured protocol and transport.
func New(cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc: url is required")
	}

	var caller Caller
	switch cfg.Transport {
	case TransportWebSocket:
		url := cfg.URL
		if strings.HasPrefix(url, "http") {
			url = "ws" + strings.TrimPrefix(url, "http")
		}
		caller = NewWSClient(WSOpts{URL: url, Username: cfg.Username, Password: cfg.Password}, logger)
	case TransportHTTP, "":
		caller = NewHTTPWithOpts(Opts{
			Endpoints: []string{cfg.URL},
			Username:  cfg.Username,
			Password:  cfg.Password,
			RPS:       cfg.RPS,
			Burst:     cfg.RPS * 2,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("rpc: unknown transport %q", cfg.Transport)
	}

	switch cfg.Protocol {
	case ProtocolAlbatross, "":
		return NewAlbatross(caller), nil
	case ProtocolPoW:
		return NewPoW(caller), nil
	}
	_ = caller.Close()
	return nil, fmt.Errorf("rpc: unknown protocol %q", cfg.Protocol)
}
