// Package rpctest provides an in-memory node for tests of code built on rpc.Client.
package rpctest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/canopy-network/nimiqx/pkg/rpc"
)

// Chain is a scriptable node. Blocks are PoW blocks mined by Miner unless added explicitly.
type Chain struct {
	Miner string

	mu        sync.Mutex
	height    uint64
	blocks    map[uint64]*rpc.Block
	txs       map[uint64][]rpc.Transaction
	inherents map[uint64][]rpc.Inherent
	balances  map[string]uint64
	mempool   []rpc.Transaction
	failures  map[string]error
	calls     map[string]int
}

var _ rpc.Client = (*Chain)(nil)

func NewChain(miner string) *Chain {
	return &Chain{
		Miner:     miner,
		blocks:    map[uint64]*rpc.Block{},
		txs:       map[uint64][]rpc.Transaction{},
		inherents: map[uint64][]rpc.Inherent{},
		balances:  map[string]uint64{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

func hashAt(tag string, height uint64) string {
	return fmt.Sprintf("%s-%d", tag, height)
}

func (c *Chain) parentHash(height uint64) string {
	if parent, ok := c.blocks[height-1]; ok {
		return parent.Hash
	}
	return "genesis"
}

// Mine appends a block with the given transactions and returns its height.
func (c *Chain) Mine(txs ...rpc.Transaction) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mineLocked("main", txs)
}

// MineN appends n empty blocks.
func (c *Chain) MineN(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.mineLocked("main", nil)
	}
}

func (c *Chain) mineLocked(tag string, txs []rpc.Transaction) uint64 {
	h := c.height + 1
	ts := time.Unix(int64(h), 0).UTC()
	block := &rpc.Block{
		Number:     h,
		Hash:       hashAt(tag, h),
		ParentHash: c.parentHash(h),
		Timestamp:  ts,
		PoW:        &rpc.PoWBlock{Miner: c.Miner, Difficulty: 1},
	}
	included := make([]rpc.Transaction, len(txs))
	for i, tx := range txs {
		tx.BlockNumber = &h
		tx.Timestamp = &ts
		included[i] = tx
	}
	c.blocks[h] = block
	c.txs[h] = included
	c.height = h
	return h
}

// AddBlock appends a prepared block; Number and ParentHash are filled in.
func (c *Chain) AddBlock(block rpc.Block, txs []rpc.Transaction, inherents []rpc.Inherent) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.height + 1
	block.Number = h
	block.ParentHash = c.parentHash(h)
	if block.Hash == "" {
		block.Hash = hashAt("main", h)
	}
	c.blocks[h] = &block
	c.txs[h] = txs
	c.inherents[h] = inherents
	c.height = h
	return h
}

// Reorg drops every block from height on and mines the same number of replacement blocks
// tagged with tag. Replacement blocks carry no transactions unless given in replace.
func (c *Chain) Reorg(height uint64, tag string, replace map[uint64][]rpc.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top := c.height
	for h := height; h <= top; h++ {
		delete(c.blocks, h)
		delete(c.txs, h)
		delete(c.inherents, h)
	}
	c.height = height - 1
	for h := height; h <= top; h++ {
		c.mineLocked(tag, replace[h])
	}
}

// Truncate forgets blocks above height.
func (c *Chain) Truncate(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := height + 1; h <= c.height; h++ {
		delete(c.blocks, h)
		delete(c.txs, h)
		delete(c.inherents, h)
	}
	c.height = height
}

func (c *Chain) SetBalance(address string, balance uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[address] = balance
}

func (c *Chain) SetMempool(txs ...rpc.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mempool = slices.Clone(txs)
}

// FailWith makes method return err until cleared with a nil err.
func (c *Chain) FailWith(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, method)
		return
	}
	c.failures[method] = err
}

// Calls returns how often method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Chain) enter(method string) error {
	c.calls[method]++
	return c.failures[method]
}

func (c *Chain) CurrentHeight(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("CurrentHeight"); err != nil {
		return 0, err
	}
	return c.height, nil
}

func (c *Chain) BlockByNumber(_ context.Context, height uint64, includeTransactions bool) (*rpc.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("BlockByNumber"); err != nil {
		return nil, err
	}
	b, ok := c.blocks[height]
	if !ok {
		return nil, nil
	}
	out := *b
	if includeTransactions {
		out.Transactions = slices.Clone(c.txs[height])
		out.TransactionsIncluded = true
	}
	return &out, nil
}

func (c *Chain) TransactionsByHeight(_ context.Context, height uint64) ([]rpc.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("TransactionsByHeight"); err != nil {
		return nil, err
	}
	return slices.Clone(c.txs[height]), nil
}

func (c *Chain) InherentsByHeight(_ context.Context, height uint64) ([]rpc.Inherent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InherentsByHeight"); err != nil {
		return nil, err
	}
	return slices.Clone(c.inherents[height]), nil
}

func (c *Chain) Account(_ context.Context, address string) (*rpc.AccountSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Account"); err != nil {
		return nil, err
	}
	return &rpc.AccountSnapshot{Address: address, Type: rpc.AccountBasic, Balance: c.balances[address]}, nil
}

func (c *Chain) MempoolHashes(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("MempoolHashes"); err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(c.mempool))
	for _, tx := range c.mempool {
		hashes = append(hashes, tx.Hash)
	}
	return hashes, nil
}

func (c *Chain) MempoolTransactions(context.Context) ([]rpc.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("MempoolTransactions"); err != nil {
		return nil, err
	}
	return slices.Clone(c.mempool), nil
}

func (c *Chain) TransactionByHash(_ context.Context, hash string) (*rpc.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("TransactionByHash"); err != nil {
		return nil, err
	}
	for _, tx := range c.mempool {
		if tx.Hash == hash {
			return &tx, nil
		}
	}
	for _, txs := range c.txs {
		for _, tx := range txs {
			if tx.Hash == hash {
				return &tx, nil
			}
		}
	}
	return nil, nil
}

func (c *Chain) SendRawTransaction(_ context.Context, raw string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SendRawTransaction"); err != nil {
		return "", err
	}
	return "sent-" + raw, nil
}

func (c *Chain) Close() error { return nil }
