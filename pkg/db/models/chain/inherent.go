package chain

import "time"

// Inherent has no natural key; a height's inherents are replaced as a set.
type Inherent struct {
	BlockHeight      uint64         `db:"block_height" json:"block_height"`
	Timestamp        time.Time      `db:"timestamp_ms" json:"timestamp_ms"`
	Type             string         `db:"type" json:"type"`
	ValidatorAddress string         `db:"validator_address" json:"validator_address"`
	Target           *string        `db:"target" json:"target,omitempty"`
	Value            *uint64        `db:"value" json:"value,omitempty"`
	Data             map[string]any `db:"data" json:"data,omitempty"`
}
