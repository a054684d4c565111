package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Albatross speaks the proof-of-stake node dialect: results are wrapped in {data, metadata}
// and timestamps are milliseconds.
type Albatross struct {
	caller Caller
}

func NewAlbatross(caller Caller) *Albatross {
	return &Albatross{caller: caller}
}

type dataEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
}

// call unwraps result.data into out; reports false when data is null.
func (a *Albatross) call(ctx context.Context, method string, out any, params ...any) (bool, error) {
	var env dataEnvelope
	if err := a.caller.Call(ctx, method, params, &env); err != nil {
		return false, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("%s: decode data: %w", method, err)
	}
	return true, nil
}

func (a *Albatross) CurrentHeight(ctx context.Context) (uint64, error) {
	var h uint64
	_, err := a.call(ctx, "getBlockNumber", &h)
	return h, err
}

type albatrossBlock struct {
	Type            string                 `json:"type"`
	Number          uint64                 `json:"number"`
	Hash            string                 `json:"hash"`
	ParentHash      string                 `json:"parentHash"`
	Timestamp       int64                  `json:"timestamp"`
	Size            *uint64                `json:"size"`
	Epoch           uint64                 `json:"epoch"`
	ExtraData       HexBytes               `json:"extraData"`
	IsElectionBlock bool                   `json:"isElectionBlock"`
	Slots           []albatrossSlot        `json:"slots"`
	Justification   *albatrossJustify      `json:"justification"`
	Producer        *albatrossProducer     `json:"producer"`
	Transactions    []albatrossTransaction `json:"transactions"`
}

type albatrossSlot struct {
	Validator string `json:"validator"`
	NumSlots  uint16 `json:"numSlots"`
}

type albatrossJustify struct {
	Sig *struct {
		Signers []int `json:"signers"`
	} `json:"sig"`
}

type albatrossProducer struct {
	Validator string `json:"validator"`
}

func (b *albatrossBlock) toBlock(withTxs bool) (*Block, error) {
	out := &Block{
		Number:               b.Number,
		Hash:                 b.Hash,
		ParentHash:           b.ParentHash,
		Timestamp:            time.UnixMilli(b.Timestamp).UTC(),
		Size:                 b.Size,
		ExtraData:            b.ExtraData,
		TransactionsIncluded: withTxs && b.Transactions != nil,
	}
	switch b.Type {
	case "macro":
		m := &MacroBlock{Epoch: b.Epoch, IsElection: b.IsElectionBlock}
		for _, s := range b.Slots {
			m.Slots = append(m.Slots, ValidatorSlots(s))
		}
		if b.Justification != nil && b.Justification.Sig != nil {
			n := len(b.Justification.Sig.Signers)
			m.Signers = &n
		}
		out.Macro = m
	case "micro":
		m := &MicroBlock{}
		if b.Producer != nil {
			m.Producer = b.Producer.Validator
		}
		out.Micro = m
	default:
		return nil, fmt.Errorf("unknown block type %q at #%d", b.Type, b.Number)
	}
	if out.TransactionsIncluded {
		out.Transactions = make([]Transaction, 0, len(b.Transactions))
		for i := range b.Transactions {
			out.Transactions = append(out.Transactions, b.Transactions[i].toTransaction())
		}
	}
	return out, nil
}

// BlockByNumber returns nil when the node answers "Block not found".
func (a *Albatross) BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*Block, error) {
	var raw albatrossBlock
	ok, err := a.call(ctx, "getBlockByNumber", &raw, height, includeTransactions)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return raw.toBlock(includeTransactions)
}

type albatrossTransaction struct {
	Hash                string   `json:"hash"`
	BlockNumber         *uint64  `json:"blockNumber"`
	Timestamp           *int64   `json:"timestamp"`
	From                string   `json:"from"`
	FromType            uint8    `json:"fromType"`
	To                  string   `json:"to"`
	ToType              uint8    `json:"toType"`
	Value               uint64   `json:"value"`
	Fee                 uint64   `json:"fee"`
	SenderData          HexBytes `json:"senderData"`
	RecipientData       HexBytes `json:"recipientData"`
	Flags               uint8    `json:"flags"`
	ValidityStartHeight uint64   `json:"validityStartHeight"`
	Proof               HexBytes `json:"proof"`
	RelatedAddresses    []string `json:"relatedAddresses"`
}

func (t *albatrossTransaction) toTransaction() Transaction {
	tx := Transaction{
		Hash:                t.Hash,
		BlockNumber:         t.BlockNumber,
		From:                t.From,
		FromType:            AccountType(t.FromType),
		To:                  t.To,
		ToType:              AccountType(t.ToType),
		Value:               t.Value,
		Fee:                 t.Fee,
		SenderData:          t.SenderData,
		RecipientData:       t.RecipientData,
		Flags:               t.Flags,
		ValidityStartHeight: t.ValidityStartHeight,
		Proof:               t.Proof,
		RelatedAddresses:    t.RelatedAddresses,
	}
	if t.Timestamp != nil {
		ts := time.UnixMilli(*t.Timestamp).UTC()
		tx.Timestamp = &ts
	}
	return tx
}

func (a *Albatross) decodeTransactions(raw []albatrossTransaction) []Transaction {
	out := make([]Transaction, 0, len(raw))
	for i := range raw {
		out = append(out, raw[i].toTransaction())
	}
	return out
}

func (a *Albatross) TransactionsByHeight(ctx context.Context, height uint64) ([]Transaction, error) {
	var raw []albatrossTransaction
	if _, err := a.call(ctx, "getTransactionsByBlockNumber", &raw, height); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return a.decodeTransactions(raw), nil
}

func (a *Albatross) InherentsByHeight(ctx context.Context, height uint64) ([]Inherent, error) {
	var raw []map[string]any
	if _, err := a.call(ctx, "getInherentsByBlockNumber", &raw, height); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Inherent, 0, len(raw))
	for _, m := range raw {
		inh := Inherent{
			Type:             GetStringField(m, "type"),
			ValidatorAddress: GetStringField(m, "validatorAddress"),
			Target:           GetOptionalStringField(m, "target"),
			Value:            GetOptionalUint64Field(m, "value"),
		}
		if n := GetOptionalUint64Field(m, "blockNumber"); n != nil {
			inh.BlockNumber = *n
		} else {
			inh.BlockNumber = height
		}
		if ms := GetOptionalUint64Field(m, "blockTime"); ms != nil {
			inh.BlockTime = time.UnixMilli(int64(*ms)).UTC()
		}
		data := make(map[string]any, len(m))
		for k, v := range m {
			switch k {
			case "blockNumber", "blockTime", "type", "validatorAddress":
			default:
				data[k] = v
			}
		}
		inh.Data = data
		out = append(out, inh)
	}
	return out, nil
}

type albatrossAccount struct {
	Address string      `json:"address"`
	Balance uint64      `json:"balance"`
	Type    AccountType `json:"type"`
}

func (a *Albatross) Account(ctx context.Context, address string) (*AccountSnapshot, error) {
	var raw albatrossAccount
	if _, err := a.call(ctx, "getAccountByAddress", &raw, address); err != nil {
		return nil, err
	}
	if raw.Address == "" {
		raw.Address = address
	}
	return &AccountSnapshot{Address: raw.Address, Type: raw.Type, Balance: raw.Balance}, nil
}

func (a *Albatross) MempoolHashes(ctx context.Context) ([]string, error) {
	var hashes []string
	if _, err := a.call(ctx, "mempoolContent", &hashes, false); err != nil {
		return nil, err
	}
	return hashes, nil
}

func (a *Albatross) MempoolTransactions(ctx context.Context) ([]Transaction, error) {
	var raw []albatrossTransaction
	if _, err := a.call(ctx, "mempoolContent", &raw, true); err != nil {
		return nil, err
	}
	return a.decodeTransactions(raw), nil
}

func (a *Albatross) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var raw albatrossTransaction
	ok, err := a.call(ctx, "getTransactionByHash", &raw, hash)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	tx := raw.toTransaction()
	return &tx, nil
}

func (a *Albatross) SendRawTransaction(ctx context.Context, raw string) (string, error) {
	var hash string
	_, err := a.call(ctx, "sendRawTransaction", &hash, raw)
	return hash, err
}

func (a *Albatross) Close() error {
	return a.caller.Close()
}
