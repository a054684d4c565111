package transform

import (
	"strings"

	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

var burnAddress = compact(nimiq.BurnAddress)

func compact(addr string) string {
	return strings.ToUpper(strings.ReplaceAll(addr, " ", ""))
}

func toBurnAddress(tx *rpc.Transaction) bool {
	return compact(tx.To) == burnAddress
}
