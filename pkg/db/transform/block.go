package transform

import (
	"time"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
)

func deriveBlock(in Input, macro bool) *chainmodels.Block {
	b := &chainmodels.Block{
		Height:        in.Height,
		Timestamp:     blockTimestamp(in),
		InherentCount: uint32(len(in.Inherents)),
	}
	if !macro {
		b.TransactionCount = uint32(len(in.Transactions))
	}
	for _, tx := range in.Transactions {
		b.Value += tx.Value
		b.Fees += tx.Fee
	}
	if in.Block == nil {
		return b
	}

	b.Hash = utils.Ptr(in.Block.Hash)
	b.Size = in.Block.Size
	b.ExtraData = in.Block.ExtraData
	switch in.Block.Kind() {
	case rpc.BlockKindPoW:
		b.CreatorAddress = utils.Ptr(in.Block.PoW.Miner)
		b.Difficulty = utils.Ptr(in.Block.PoW.Difficulty)
	case rpc.BlockKindMicro:
		b.CreatorAddress = utils.Ptr(in.Block.Micro.Producer)
	case rpc.BlockKindMacro:
	}
	return b
}

func blockTimestamp(in Input) *time.Time {
	switch {
	case in.Block != nil:
		return utils.Ptr(in.Block.Timestamp)
	case len(in.Transactions) > 0 && in.Transactions[0].Timestamp != nil:
		return utils.Ptr(*in.Transactions[0].Timestamp)
	case len(in.Inherents) > 0:
		return utils.Ptr(in.Inherents[0].BlockTime)
	}
	return nil
}

func deriveEpoch(in Input) *chainmodels.Epoch {
	if in.Block == nil || in.Block.Macro == nil || !in.Block.Macro.IsElection {
		return nil
	}
	m := in.Block.Macro
	e := &chainmodels.Epoch{
		Number:            m.Epoch,
		BlockHeight:       in.Height,
		ElectedValidators: make([]string, 0, len(m.Slots)),
		ValidatorSlots:    make([]int32, 0, len(m.Slots)),
		Votes:             nimiq.TransitionVotes,
	}
	for _, s := range m.Slots {
		e.ElectedValidators = append(e.ElectedValidators, s.Validator)
		e.ValidatorSlots = append(e.ValidatorSlots, int32(s.NumSlots))
	}
	if m.Signers != nil {
		e.Votes = int32(*m.Signers)
	}
	return e
}
