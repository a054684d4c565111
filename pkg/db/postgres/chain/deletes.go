package chain

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/db/postgres"
)

const accountsCreatedFrom = `SELECT address FROM accounts WHERE first_seen >= $1`

// pruneStakers drops stakers that started at or above from and rebuilds the others from the
// delegation transactions that survive.
func (db *DB) pruneStakers(ctx context.Context, exec postgres.Executor, from uint64) error {
	if _, err := exec.Exec(ctx, `
		DELETE FROM prestaking_stakers
		WHERE first_transaction_height >= $1 OR address IN (`+accountsCreatedFrom+`)
	`, from); err != nil {
		return err
	}

	rows, err := exec.Query(ctx, `
		SELECT address, delegation, transactions, first_transaction_height, latest_transaction_height
		FROM prestaking_stakers
		WHERE latest_transaction_height >= $1
	`, from)
	if err != nil {
		return err
	}
	stakers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*chainmodels.PrestakingStaker, error) {
		var s chainmodels.PrestakingStaker
		err := row.Scan(&s.Address, &s.Delegation, &s.Transactions, &s.FirstTransactionHeight, &s.LatestTransactionHeight)
		return &s, err
	})
	if err != nil {
		return err
	}

	for _, s := range stakers {
		known, err := stakerTransactions(ctx, exec, s.Transactions)
		if err != nil {
			return err
		}
		if !s.Prune(from, known) {
			if _, err := exec.Exec(ctx, `DELETE FROM prestaking_stakers WHERE address = $1`, s.Address); err != nil {
				return err
			}
			continue
		}
		if _, err := exec.Exec(ctx, `
			UPDATE prestaking_stakers
			SET delegation = $2, transactions = $3, latest_transaction_height = $4
			WHERE address = $1
		`, s.Address, s.Delegation, s.Transactions, s.LatestTransactionHeight); err != nil {
			return err
		}
	}
	return nil
}

func stakerTransactions(ctx context.Context, exec postgres.Executor, hashes []string) (map[string]chainmodels.StakerTx, error) {
	rows, err := exec.Query(ctx, `
		SELECT hash, block_height, recipient_data FROM transactions
		WHERE hash = ANY($1) AND block_height IS NOT NULL
	`, hashes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]chainmodels.StakerTx, len(hashes))
	for rows.Next() {
		var hash string
		var tx chainmodels.StakerTx
		if err := rows.Scan(&hash, &tx.Height, &tx.RecipientData); err != nil {
			return nil, err
		}
		out[hash] = tx
	}
	return out, rows.Err()
}

// prunePreregistrations clears references to rolled back transactions and heights, then
// removes rows with nothing left.
func (db *DB) prunePreregistrations(ctx context.Context, exec postgres.Executor, from uint64) error {
	nullIfRolledBack := func(col string) string {
		return fmt.Sprintf(`%[1]s = CASE WHEN %[1]s IN (SELECT hash FROM transactions WHERE block_height >= $1) THEN NULL ELSE %[1]s END`, col)
	}
	query := `UPDATE validator_preregistrations SET `
	for i := 1; i <= 6; i++ {
		query += nullIfRolledBack(fmt.Sprintf("transaction_%02d", i)) + ",\n"
	}
	query += nullIfRolledBack("deposit_transaction") + `,
		transaction_01_height = CASE WHEN transaction_01_height >= $1 THEN NULL ELSE transaction_01_height END,
		deposit_transaction_height = CASE WHEN deposit_transaction_height >= $1 THEN NULL ELSE deposit_transaction_height END`
	if _, err := exec.Exec(ctx, query, from); err != nil {
		return err
	}

	_, err := exec.Exec(ctx, `
		DELETE FROM validator_preregistrations
		WHERE address IN (`+accountsCreatedFrom+`)
		   OR (transaction_01 IS NULL AND transaction_02 IS NULL AND transaction_03 IS NULL
		       AND transaction_04 IS NULL AND transaction_05 IS NULL AND transaction_06 IS NULL
		       AND deposit_transaction IS NULL)
	`, from)
	return err
}

func (db *DB) deleteVestingOwnersFrom(ctx context.Context, exec postgres.Executor, from uint64) error {
	_, err := exec.Exec(ctx, `
		DELETE FROM vesting_owners WHERE block_height >= $1 OR address IN (`+accountsCreatedFrom+`)
	`, from)
	return err
}

func (db *DB) deleteInherentsFrom(ctx context.Context, exec postgres.Executor, from uint64) error {
	_, err := exec.Exec(ctx, `DELETE FROM inherents WHERE block_height >= $1`, from)
	return err
}

func (db *DB) deleteEpochsFrom(ctx context.Context, exec postgres.Executor, from uint64) error {
	_, err := exec.Exec(ctx, `DELETE FROM epochs WHERE block_height >= $1`, from)
	return err
}

func (db *DB) deleteTransactionsFrom(ctx context.Context, exec postgres.Executor, from uint64) error {
	_, err := exec.Exec(ctx, `DELETE FROM transactions WHERE block_height >= $1`, from)
	return err
}

// trimAccounts forgets activity at or above from and removes accounts first seen there.
func (db *DB) trimAccounts(ctx context.Context, exec postgres.Executor, from uint64) error {
	batch := &pgx.Batch{}
	batch.Queue(`UPDATE accounts SET last_sent = NULL WHERE last_sent >= $1`, from)
	batch.Queue(`UPDATE accounts SET last_received = NULL WHERE last_received >= $1`, from)
	batch.Queue(`DELETE FROM accounts WHERE first_seen >= $1`, from)
	return db.executeBatch(ctx, exec, batch)
}

func (db *DB) deleteBlocksFrom(ctx context.Context, exec postgres.Executor, from uint64) error {
	_, err := exec.Exec(ctx, `DELETE FROM blocks WHERE height >= $1`, from)
	return err
}

// DeleteBlocksFrom removes every block at or above from together with all rows that depend on it.
func (db *DB) DeleteBlocksFrom(ctx context.Context, from uint64) error {
	return db.InTx(ctx, func(tx pgx.Tx) error {
		// Order matters: side tables read transaction heights before transactions are deleted.
		deleteFuncs := []struct {
			name string
			fn   func(context.Context, postgres.Executor, uint64) error
		}{
			{"prestaking_stakers", db.pruneStakers},
			{"validator_preregistrations", db.prunePreregistrations},
			{"vesting_owners", db.deleteVestingOwnersFrom},
			{"inherents", db.deleteInherentsFrom},
			{"epochs", db.deleteEpochsFrom},
			{"transactions", db.deleteTransactionsFrom},
			{"accounts", db.trimAccounts},
			{"blocks", db.deleteBlocksFrom},
		}

		for _, df := range deleteFuncs {
			if err := df.fn(ctx, tx, from); err != nil {
				return fmt.Errorf("failed to delete %s from height %d: %w", df.name, from, err)
			}
			db.Logger.Debug("Deleted rows from height", zap.String("table", df.name), zap.Uint64("from", from))
		}
		return nil
	})
}

// DeletePendingTransaction removes a mempool row; confirmed rows are never touched.
func (db *DB) DeletePendingTransaction(ctx context.Context, hash string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transactions WHERE hash = $1 AND block_height IS NULL`, hash)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending transaction %s: %w", hash, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePendingTransactions clears the whole mempool view.
func (db *DB) DeletePendingTransactions(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transactions WHERE block_height IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}
