package chain

// Epoch is written for election macro blocks only.
type Epoch struct {
	Number            uint64   `db:"number" json:"number"`
	BlockHeight       uint64   `db:"block_height" json:"block_height"`
	ElectedValidators []string `db:"elected_validators" json:"elected_validators"`
	ValidatorSlots    []int32  `db:"validator_slots" json:"validator_slots"`
	Votes             int32    `db:"votes" json:"votes"`
}
