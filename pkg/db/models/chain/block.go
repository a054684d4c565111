package chain

import "time"

// Block is one row per height. Nullable columns are pointers; absent values are never
// written over present ones.
type Block struct {
	Height           uint64     `db:"height" json:"height"`
	Timestamp        *time.Time `db:"timestamp_ms" json:"timestamp_ms,omitempty"`
	Hash             *string    `db:"hash" json:"hash,omitempty"`
	CreatorAddress   *string    `db:"creator_address" json:"creator_address,omitempty"`
	TransactionCount uint32     `db:"transaction_count" json:"transaction_count"`
	InherentCount    uint32     `db:"inherent_count" json:"inherent_count"`
	Value            uint64     `db:"value" json:"value"`
	Fees             uint64     `db:"fees" json:"fees"`
	Size             *uint64    `db:"size" json:"size,omitempty"`
	Difficulty       *float64   `db:"difficulty" json:"difficulty,omitempty"`
	ExtraData        []byte     `db:"extra_data" json:"extra_data,omitempty"`
}

// MergeBlock applies incoming on top of existing: counters are replaced, nullable
// fields only when incoming has them.
func MergeBlock(existing, incoming *Block) *Block {
	if existing == nil {
		return clonePtr(incoming)
	}
	out := *incoming
	out.Timestamp = coalesce(incoming.Timestamp, existing.Timestamp)
	out.Hash = coalesce(incoming.Hash, existing.Hash)
	out.CreatorAddress = coalesce(incoming.CreatorAddress, existing.CreatorAddress)
	out.Size = coalesce(incoming.Size, existing.Size)
	out.Difficulty = coalesce(incoming.Difficulty, existing.Difficulty)
	out.ExtraData = coalesceBytes(incoming.ExtraData, existing.ExtraData)
	return &out
}
