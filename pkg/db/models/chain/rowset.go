package chain

import (
	"sort"
)

// RowSet is everything derived from one height, committed atomically.
type RowSet struct {
	Height           uint64
	Block            *Block
	Epoch            *Epoch
	Accounts         map[string]*Account
	Transactions     []*Transaction
	Inherents        []*Inherent
	VestingOwners    []*VestingOwner
	Preregistrations map[string]*ValidatorPreregistration
	Stakers          map[string]*PrestakingStaker

	// IncludedHashes lists every transaction included at this height, stored or not.
	IncludedHashes []string
}

func NewRowSet(height uint64) *RowSet {
	return &RowSet{
		Height:           height,
		Accounts:         map[string]*Account{},
		Preregistrations: map[string]*ValidatorPreregistration{},
		Stakers:          map[string]*PrestakingStaker{},
	}
}

// TouchAccount merges a delta for address into the set.
func (r *RowSet) TouchAccount(delta *Account) {
	if cur, ok := r.Accounts[delta.Address]; ok {
		cur.Absorb(delta)
		return
	}
	r.Accounts[delta.Address] = delta
}

// Addresses returns the touched addresses in stable order.
func (r *RowSet) Addresses() []string {
	out := make([]string, 0, len(r.Accounts))
	for a := range r.Accounts {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// AccountList returns the account rows ordered by address.
func (r *RowSet) AccountList() []*Account {
	out := make([]*Account, 0, len(r.Accounts))
	for _, a := range r.Addresses() {
		out = append(out, r.Accounts[a])
	}
	return out
}
