package chain

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	chainstore "github.com/canopy-network/nimiqx/pkg/db"
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/db/postgres"
)

// CurrentTip returns the highest stored height.
func (db *DB) CurrentTip(ctx context.Context) (uint64, bool, error) {
	var tip *uint64
	if err := db.Pool.QueryRow(ctx, `SELECT MAX(height) FROM blocks`).Scan(&tip); err != nil {
		return 0, false, fmt.Errorf("failed to get tip: %w", err)
	}
	if tip == nil {
		return 0, false, nil
	}
	return *tip, true, nil
}

func (db *DB) BlockHashAt(ctx context.Context, height uint64) (string, bool, error) {
	var hash *string
	err := db.Pool.QueryRow(ctx, `SELECT hash FROM blocks WHERE height = $1`, height).Scan(&hash)
	if postgres.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get block hash at %d: %w", height, err)
	}
	if hash == nil {
		return "", false, nil
	}
	return *hash, true, nil
}

func (db *DB) MostRecentTxHeight(ctx context.Context, address string, role chainstore.Role) (uint64, bool, error) {
	column := "sender_address"
	if role == chainstore.RoleRecipient {
		column = "recipient_address"
	}
	query := `SELECT MAX(block_height) FROM transactions WHERE ` + column + ` = $1 AND block_height IS NOT NULL`
	return db.maxHeight(ctx, query, address)
}

func (db *DB) MostRecentMinedHeight(ctx context.Context, address string) (uint64, bool, error) {
	return db.maxHeight(ctx, `SELECT MAX(height) FROM blocks WHERE creator_address = $1`, address)
}

func (db *DB) maxHeight(ctx context.Context, query, address string) (uint64, bool, error) {
	var h *uint64
	if err := db.Pool.QueryRow(ctx, query, address).Scan(&h); err != nil {
		return 0, false, fmt.Errorf("failed to get height for %s: %w", address, err)
	}
	if h == nil {
		return 0, false, nil
	}
	return *h, true, nil
}

func (db *DB) GetAccount(ctx context.Context, address string) (*chainmodels.Account, error) {
	var a chainmodels.Account
	var typ int16
	err := db.Pool.QueryRow(ctx, `
		SELECT address, type, balance, creation_data, first_seen, last_sent, last_received
		FROM accounts WHERE address = $1
	`, address).Scan(&a.Address, &typ, &a.Balance, &a.CreationData, &a.FirstSeen, &a.LastSent, &a.LastReceived)
	if postgres.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	a.Type = uint8(typ)
	return &a, nil
}

// AffectedAddresses lists accounts that predate from but were active at or above it.
func (db *DB) AffectedAddresses(ctx context.Context, from uint64) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT address FROM accounts
		WHERE first_seen < $1 AND (last_sent >= $1 OR last_received >= $1)
		ORDER BY address
	`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query affected addresses: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
