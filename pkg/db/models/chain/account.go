package chain

// Account is keyed by address. Balance always comes from the node, never from local arithmetic.
type Account struct {
	Address      string  `db:"address" json:"address"`
	Type         uint8   `db:"type" json:"type"`
	Balance      uint64  `db:"balance" json:"balance"`
	CreationData []byte  `db:"creation_data" json:"creation_data,omitempty"`
	FirstSeen    uint64  `db:"first_seen" json:"first_seen"`
	LastSent     *uint64 `db:"last_sent" json:"last_sent,omitempty"`
	LastReceived *uint64 `db:"last_received" json:"last_received,omitempty"`

	// Recomputed marks LastSent/LastReceived as rebuilt after a fork: they are written
	// as-is, nil included, instead of coalescing.
	Recomputed bool `db:"-" json:"-"`
}

// Absorb folds another appearance of the same address within one block into a.
func (a *Account) Absorb(other *Account) {
	a.Type = other.Type
	if other.FirstSeen < a.FirstSeen {
		a.FirstSeen = other.FirstSeen
	}
	a.CreationData = coalesceBytes(other.CreationData, a.CreationData)
	a.LastSent = maxHeight(a.LastSent, other.LastSent)
	a.LastReceived = maxHeight(a.LastReceived, other.LastReceived)
}

// MergeAccount is the upsert rule: first_seen is fixed at creation, type and balance
// follow the latest snapshot, creation_data and last_* coalesce unless recomputed.
func MergeAccount(existing, incoming *Account) *Account {
	if existing == nil {
		out := clonePtr(incoming)
		out.Recomputed = false
		return out
	}
	out := *existing
	out.Type = incoming.Type
	out.Balance = incoming.Balance
	out.CreationData = coalesceBytes(incoming.CreationData, existing.CreationData)
	if incoming.Recomputed {
		out.LastSent = incoming.LastSent
		out.LastReceived = incoming.LastReceived
	} else {
		out.LastSent = coalesce(incoming.LastSent, existing.LastSent)
		out.LastReceived = coalesce(incoming.LastReceived, existing.LastReceived)
	}
	out.Recomputed = false
	return &out
}
