package transform

import (
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

func inherentRow(height uint64, inh rpc.Inherent) *chainmodels.Inherent {
	return &chainmodels.Inherent{
		BlockHeight:      height,
		Timestamp:        inh.BlockTime,
		Type:             inh.Type,
		ValidatorAddress: inh.ValidatorAddress,
		Target:           inh.Target,
		Value:            inh.Value,
		Data:             inh.Data,
	}
}
