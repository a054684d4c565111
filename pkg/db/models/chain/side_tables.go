package chain

import (
	"slices"
	"strings"
)

// VestingOwner maps a vesting contract to the owner encoded in its creation payload.
type VestingOwner struct {
	Address     string `db:"address" json:"address"`
	Owner       string `db:"owner" json:"owner"`
	BlockHeight uint64 `db:"block_height" json:"block_height"`
}

func MergeVestingOwner(existing, incoming *VestingOwner) *VestingOwner {
	if existing == nil {
		return clonePtr(incoming)
	}
	out := *existing
	if incoming.Owner != "" {
		out.Owner = incoming.Owner
	}
	if incoming.BlockHeight < out.BlockHeight {
		out.BlockHeight = incoming.BlockHeight
	}
	return &out
}

// ValidatorPreregistration accumulates the six payload transactions and the deposit of one validator.
type ValidatorPreregistration struct {
	Address                  string     `db:"address" json:"address"`
	Transactions             [6]*string `db:"-" json:"transactions"`
	DepositTransaction       *string    `db:"deposit_transaction" json:"deposit_transaction,omitempty"`
	Transaction01Height      *uint64    `db:"transaction_01_height" json:"transaction_01_height,omitempty"`
	DepositTransactionHeight *uint64    `db:"deposit_transaction_height" json:"deposit_transaction_height,omitempty"`
}

// Empty reports whether no reference is left.
func (v *ValidatorPreregistration) Empty() bool {
	for _, tx := range v.Transactions {
		if tx != nil {
			return false
		}
	}
	return v.DepositTransaction == nil
}

func MergeValidatorPreregistration(existing, incoming *ValidatorPreregistration) *ValidatorPreregistration {
	if existing == nil {
		return clonePtr(incoming)
	}
	out := *existing
	for i := range out.Transactions {
		out.Transactions[i] = coalesce(incoming.Transactions[i], existing.Transactions[i])
	}
	out.DepositTransaction = coalesce(incoming.DepositTransaction, existing.DepositTransaction)
	out.Transaction01Height = coalesce(incoming.Transaction01Height, existing.Transaction01Height)
	out.DepositTransactionHeight = coalesce(incoming.DepositTransactionHeight, existing.DepositTransactionHeight)
	return &out
}

// PrestakingStaker is one pre-staking delegator; the newest delegation transaction decides the validator.
type PrestakingStaker struct {
	Address                 string   `db:"address" json:"address"`
	Delegation              string   `db:"delegation" json:"delegation"`
	Transactions            []string `db:"transactions" json:"transactions"`
	FirstTransactionHeight  uint64   `db:"first_transaction_height" json:"first_transaction_height"`
	LatestTransactionHeight uint64   `db:"latest_transaction_height" json:"latest_transaction_height"`
}

func MergePrestakingStaker(existing, incoming *PrestakingStaker) *PrestakingStaker {
	if existing == nil {
		out := clonePtr(incoming)
		out.Transactions = slices.Clone(incoming.Transactions)
		return out
	}
	out := *existing
	out.Transactions = slices.Clone(existing.Transactions)
	for _, h := range incoming.Transactions {
		if !slices.Contains(out.Transactions, h) {
			out.Transactions = append(out.Transactions, h)
		}
	}
	if incoming.FirstTransactionHeight < out.FirstTransactionHeight {
		out.FirstTransactionHeight = incoming.FirstTransactionHeight
	}
	if incoming.LatestTransactionHeight >= existing.LatestTransactionHeight {
		out.LatestTransactionHeight = incoming.LatestTransactionHeight
		out.Delegation = incoming.Delegation
	}
	return &out
}

// StakerTx is what pruning needs to know about one delegation transaction.
type StakerTx struct {
	Height        uint64
	RecipientData []byte
}

// Prune drops delegation transactions included at or above from. The latest height and the
// delegation fall back to the newest survivor; hashes missing from txs are kept as-is.
// It reports whether any transaction survives.
func (s *PrestakingStaker) Prune(from uint64, txs map[string]StakerTx) bool {
	kept := make([]string, 0, len(s.Transactions))
	var latest *StakerTx
	for _, hash := range s.Transactions {
		tx, ok := txs[hash]
		if ok && tx.Height >= from {
			continue
		}
		kept = append(kept, hash)
		if ok && (latest == nil || tx.Height >= latest.Height) {
			latest = &tx
		}
	}
	s.Transactions = kept
	if latest != nil {
		s.LatestTransactionHeight = latest.Height
		s.Delegation = strings.TrimSpace(string(latest.RecipientData))
	} else if s.LatestTransactionHeight >= from {
		s.LatestTransactionHeight = s.FirstTransactionHeight
	}
	return len(kept) > 0
}
