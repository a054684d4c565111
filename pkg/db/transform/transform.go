// Package transform maps one fetched height onto the rows the store commits for it.
package transform

import (
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
)

// Input is everything fetched for one height. Block is nil when the node only returned
// transactions and inherents for it.
type Input struct {
	Height       uint64
	Block        *rpc.Block
	Transactions []rpc.Transaction
	Inherents    []rpc.Inherent
}

// Derive builds the row set for in. It performs no I/O; balances are left at zero for the
// caller to fill from the node.
func Derive(policy nimiq.Policy, in Input) *chainmodels.RowSet {
	rows := chainmodels.NewRowSet(in.Height)
	macro := isMacro(policy, in)

	rows.Block = deriveBlock(in, macro)
	rows.Epoch = deriveEpoch(in)

	if creator := rows.Block.CreatorAddress; creator != nil {
		rows.TouchAccount(&chainmodels.Account{
			Address:      *creator,
			Type:         uint8(rpc.AccountBasic),
			FirstSeen:    in.Height,
			LastReceived: utils.Ptr(in.Height),
		})
	}

	for i := range in.Transactions {
		tx := &in.Transactions[i]
		rows.IncludedHashes = append(rows.IncludedHashes, tx.Hash)
		touchParties(rows, in.Height, tx)

		if owner, ok := vestingOwner(in.Height, tx); ok {
			rows.VestingOwners = append(rows.VestingOwners, owner)
		}
		// Macro blocks carry no stored transactions, so nothing may reference them.
		if macro {
			continue
		}
		rows.Transactions = append(rows.Transactions, transactionRow(tx, utils.Ptr(in.Height), rows.Block.Timestamp))
		if reg, ok := preregistration(in.Height, tx); ok {
			rows.Preregistrations[reg.Address] = chainmodels.MergeValidatorPreregistration(rows.Preregistrations[reg.Address], reg)
		}
		if st, ok := prestake(in.Height, tx); ok {
			rows.Stakers[st.Address] = chainmodels.MergePrestakingStaker(rows.Stakers[st.Address], st)
		}
	}

	for _, inh := range in.Inherents {
		rows.Inherents = append(rows.Inherents, inherentRow(in.Height, inh))
	}
	return rows
}

func isMacro(policy nimiq.Policy, in Input) bool {
	if in.Block == nil {
		return policy.IsMacroBlockAt(in.Height)
	}
	return in.Block.Kind() == rpc.BlockKindMacro
}
