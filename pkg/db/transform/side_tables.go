package transform

import (
	"strings"
	"unicode/utf8"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
)

// vestingOwner reads the owner from a vesting contract creation payload.
func vestingOwner(height uint64, tx *rpc.Transaction) (*chainmodels.VestingOwner, bool) {
	if tx.ToType != rpc.AccountVesting || len(tx.RecipientData) < nimiq.AddressLength {
		return nil, false
	}
	owner, err := nimiq.AddressFromBytes(tx.RecipientData)
	if err != nil {
		return nil, false
	}
	return &chainmodels.VestingOwner{Address: tx.To, Owner: owner.UserFriendly(), BlockHeight: height}, true
}

// preregistration recognises the six 1 luna payload parts and the deposit of a validator
// pre-registration, both burned during the registration window.
func preregistration(height uint64, tx *rpc.Transaction) (*chainmodels.ValidatorPreregistration, bool) {
	if !nimiq.RegistrationWindow.Contains(height) || !toBurnAddress(tx) {
		return nil, false
	}
	reg := &chainmodels.ValidatorPreregistration{Address: tx.From}
	switch {
	case tx.Value == 1 && len(tx.RecipientData) == nimiq.PreregistrationData:
		part := int(tx.RecipientData[0])
		if part < 1 || part > nimiq.PreregistrationParts {
			return nil, false
		}
		reg.Transactions[part-1] = utils.Ptr(tx.Hash)
		if part == 1 {
			reg.Transaction01Height = utils.Ptr(height)
		}
	case tx.Value == nimiq.ValidatorDeposit && len(tx.RecipientData) == 0:
		reg.DepositTransaction = utils.Ptr(tx.Hash)
		reg.DepositTransactionHeight = utils.Ptr(height)
	default:
		return nil, false
	}
	return reg, true
}

// prestake recognises a delegation: at least the minimum stake burned during the pre-staking
// window, with the validator's address as UTF-8 payload.
func prestake(height uint64, tx *rpc.Transaction) (*chainmodels.PrestakingStaker, bool) {
	if !nimiq.PrestakingWindow.Contains(height) || !toBurnAddress(tx) || tx.Value < nimiq.MinDelegation {
		return nil, false
	}
	if !utf8.Valid(tx.RecipientData) {
		return nil, false
	}
	validator := strings.TrimSpace(string(tx.RecipientData))
	if !nimiq.IsValidUserFriendly(validator) {
		return nil, false
	}
	return &chainmodels.PrestakingStaker{
		Address:                 tx.From,
		Delegation:              validator,
		Transactions:            []string{tx.Hash},
		FirstTransactionHeight:  height,
		LatestTransactionHeight: height,
	}, true
}
