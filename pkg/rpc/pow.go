package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PoW speaks the legacy proof-of-work node dialect: bare results, null for unknown
// objects, timestamps in seconds, no inherents.
type PoW struct {
	caller Caller
}

func NewPoW(caller Caller) *PoW {
	return &PoW{caller: caller}
}

func (p *PoW) CurrentHeight(ctx context.Context) (uint64, error) {
	var h uint64
	err := p.caller.Call(ctx, "blockNumber", nil, &h)
	return h, err
}

type powBlock struct {
	Number       uint64            `json:"number"`
	Hash         string            `json:"hash"`
	ParentHash   string            `json:"parentHash"`
	Difficulty   flexFloat         `json:"difficulty"`
	Timestamp    int64             `json:"timestamp"`
	MinerAddress string            `json:"minerAddress"`
	ExtraData    HexBytes          `json:"extraData"`
	Size         *uint64           `json:"size"`
	Transactions []json.RawMessage `json:"transactions"`
}

type powTransaction struct {
	Hash                string   `json:"hash"`
	BlockNumber         *uint64  `json:"blockNumber"`
	Timestamp           *int64   `json:"timestamp"`
	FromAddress         string   `json:"fromAddress"`
	FromType            uint8    `json:"fromType"`
	ToAddress           string   `json:"toAddress"`
	ToType              uint8    `json:"toType"`
	Value               uint64   `json:"value"`
	Fee                 uint64   `json:"fee"`
	Data                HexBytes `json:"data"`
	Proof               HexBytes `json:"proof"`
	Flags               uint8    `json:"flags"`
	ValidityStartHeight uint64   `json:"validityStartHeight"`
}

func (t *powTransaction) toTransaction() Transaction {
	tx := Transaction{
		Hash:                t.Hash,
		BlockNumber:         t.BlockNumber,
		From:                t.FromAddress,
		FromType:            AccountType(t.FromType),
		To:                  t.ToAddress,
		ToType:              AccountType(t.ToType),
		Value:               t.Value,
		Fee:                 t.Fee,
		RecipientData:       t.Data,
		Flags:               t.Flags,
		ValidityStartHeight: t.ValidityStartHeight,
		Proof:               t.Proof,
	}
	// Pending transactions report timestamp 0.
	if t.Timestamp != nil && *t.Timestamp > 0 {
		ts := time.Unix(*t.Timestamp, 0).UTC()
		tx.Timestamp = &ts
	}
	return tx
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// BlockByNumber returns nil for a null result.
func (p *PoW) BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*Block, error) {
	var raw json.RawMessage
	if err := p.caller.Call(ctx, "getBlockByNumber", []any{height, includeTransactions}, &raw); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var b powBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("getBlockByNumber: decode #%d: %w", height, err)
	}

	out := &Block{
		Number:     b.Number,
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  time.Unix(b.Timestamp, 0).UTC(),
		Size:       b.Size,
		ExtraData:  b.ExtraData,
		PoW:        &PoWBlock{Miner: b.MinerAddress, Difficulty: float64(b.Difficulty)},
	}
	if includeTransactions {
		out.TransactionsIncluded = true
		out.Transactions = make([]Transaction, 0, len(b.Transactions))
		for _, rawTx := range b.Transactions {
			var tx powTransaction
			if err := json.Unmarshal(rawTx, &tx); err != nil {
				return nil, fmt.Errorf("getBlockByNumber: decode transaction in #%d: %w", height, err)
			}
			if tx.BlockNumber == nil {
				n := b.Number
				tx.BlockNumber = &n
			}
			if tx.Timestamp == nil || *tx.Timestamp == 0 {
				ts := b.Timestamp
				tx.Timestamp = &ts
			}
			out.Transactions = append(out.Transactions, tx.toTransaction())
		}
	}
	return out, nil
}

// TransactionsByHeight reads the transactions embedded in the block.
func (p *PoW) TransactionsByHeight(ctx context.Context, height uint64) ([]Transaction, error) {
	b, err := p.BlockByNumber(ctx, height, true)
	if err != nil || b == nil {
		return nil, err
	}
	return b.Transactions, nil
}

// InherentsByHeight is always empty: the proof-of-work chain has no inherents.
func (p *PoW) InherentsByHeight(context.Context, uint64) ([]Inherent, error) {
	return nil, nil
}

type powAccount struct {
	Address string      `json:"address"`
	Balance uint64      `json:"balance"`
	Type    AccountType `json:"type"`
}

func (p *PoW) Account(ctx context.Context, address string) (*AccountSnapshot, error) {
	var raw powAccount
	if err := p.caller.Call(ctx, "getAccount", []any{address}, &raw); err != nil {
		return nil, err
	}
	if raw.Address == "" {
		raw.Address = address
	}
	return &AccountSnapshot{Address: raw.Address, Type: raw.Type, Balance: raw.Balance}, nil
}

func (p *PoW) MempoolHashes(ctx context.Context) ([]string, error) {
	var hashes []string
	err := p.caller.Call(ctx, "mempoolContent", []any{false}, &hashes)
	return hashes, err
}

func (p *PoW) MempoolTransactions(ctx context.Context) ([]Transaction, error) {
	var raw []powTransaction
	if err := p.caller.Call(ctx, "mempoolContent", []any{true}, &raw); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(raw))
	for i := range raw {
		out = append(out, raw[i].toTransaction())
	}
	return out, nil
}

func (p *PoW) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var raw json.RawMessage
	if err := p.caller.Call(ctx, "getTransactionByHash", []any{hash}, &raw); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var t powTransaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("getTransactionByHash: %w", err)
	}
	tx := t.toTransaction()
	return &tx, nil
}

func (p *PoW) SendRawTransaction(ctx context.Context, raw string) (string, error) {
	var hash string
	err := p.caller.Call(ctx, "sendRawTransaction", []any{raw}, &hash)
	return hash, err
}

func (p *PoW) Close() error {
	return p.caller.Close()
}
