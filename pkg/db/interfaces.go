package db

import (
	"context"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
)

// Role selects which side of a transaction an address lookup matches.
type Role uint8

const (
	RoleSender Role = iota + 1
	RoleRecipient
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "recipient"
}

// ChainStore is the persistence capability the sync engine consumes. Lookups report
// absence through ok=false rather than an error. The engine is the only writer.
type ChainStore interface {
	// CurrentTip returns the highest stored block height.
	CurrentTip(ctx context.Context) (height uint64, ok bool, err error)
	BlockHashAt(ctx context.Context, height uint64) (hash string, ok bool, err error)
	MostRecentTxHeight(ctx context.Context, address string, role Role) (height uint64, ok bool, err error)
	MostRecentMinedHeight(ctx context.Context, address string) (height uint64, ok bool, err error)
	GetAccount(ctx context.Context, address string) (*chainmodels.Account, error)

	// AffectedAddresses lists accounts that survive a delete from height but whose
	// last_sent or last_received point at or above it.
	AffectedAddresses(ctx context.Context, from uint64) ([]string, error)

	// DeleteBlocksFrom removes every block >= from and everything anchored to them.
	DeleteBlocksFrom(ctx context.Context, from uint64) error

	// Commit writes one height's rows atomically with coalescing upserts.
	Commit(ctx context.Context, rows *chainmodels.RowSet) error

	InsertPendingTransactions(ctx context.Context, txs []*chainmodels.Transaction) error
	// DeletePendingTransaction removes hash only while it is still unconfirmed.
	DeletePendingTransaction(ctx context.Context, hash string) (bool, error)
	DeletePendingTransactions(ctx context.Context) (int64, error)

	Close() error
}
