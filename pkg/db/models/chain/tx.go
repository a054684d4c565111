package chain

import "time"

// Transaction is keyed by hash. BlockHeight is nil while the transaction is pending.
type Transaction struct {
	Hash                string     `db:"hash" json:"hash"`
	BlockHeight         *uint64    `db:"block_height" json:"block_height,omitempty"`
	Timestamp           *time.Time `db:"timestamp_ms" json:"timestamp_ms,omitempty"`
	SenderAddress       string     `db:"sender_address" json:"sender_address"`
	SenderType          uint8      `db:"sender_type" json:"sender_type"`
	SenderData          []byte     `db:"sender_data" json:"sender_data,omitempty"`
	RecipientAddress    string     `db:"recipient_address" json:"recipient_address"`
	RecipientType       uint8      `db:"recipient_type" json:"recipient_type"`
	RecipientData       []byte     `db:"recipient_data" json:"recipient_data,omitempty"`
	Value               uint64     `db:"value" json:"value"`
	Fee                 uint64     `db:"fee" json:"fee"`
	ValidityStartHeight uint64     `db:"validity_start_height" json:"validity_start_height"`
	Flags               uint8      `db:"flags" json:"flags"`
	Proof               []byte     `db:"proof" json:"proof,omitempty"`
	RelatedAddresses    []string   `db:"related_addresses" json:"related_addresses,omitempty"`
}

// Pending reports whether the transaction has not been seen in a block yet.
func (t *Transaction) Pending() bool {
	return t.BlockHeight == nil
}

// MergeTransaction confirms a pending row in place: inclusion fields coalesce, content is immutable.
func MergeTransaction(existing, incoming *Transaction) *Transaction {
	if existing == nil {
		return clonePtr(incoming)
	}
	out := *existing
	out.BlockHeight = coalesce(incoming.BlockHeight, existing.BlockHeight)
	out.Timestamp = coalesce(incoming.Timestamp, existing.Timestamp)
	out.Proof = coalesceBytes(incoming.Proof, existing.Proof)
	if incoming.RelatedAddresses != nil {
		out.RelatedAddresses = incoming.RelatedAddresses
	}
	return &out
}
