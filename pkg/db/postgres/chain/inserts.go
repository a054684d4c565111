package chain

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/db/postgres"
)

// Commit writes every row derived from one height in a single transaction.
func (db *DB) Commit(ctx context.Context, rows *chainmodels.RowSet) error {
	if rows == nil || rows.Block == nil {
		return fmt.Errorf("commit: row set has no block")
	}
	start := time.Now()
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		// Order matters: every table references blocks, side tables reference accounts and transactions.
		steps := []struct {
			name string
			fn   func(context.Context, postgres.Executor, *chainmodels.RowSet) error
		}{
			{"block", db.insertBlock},
			{"epoch", db.insertEpoch},
			{"accounts", db.insertAccounts},
			{"vesting_owners", db.insertVestingOwners},
			{"transactions", db.insertTransactions},
			{"inherents", db.replaceInherents},
			{"validator_preregistrations", db.insertPreregistrations},
			{"prestaking_stakers", db.insertStakers},
		}
		for _, step := range steps {
			if err := step.fn(ctx, tx, rows); err != nil {
				return fmtInsertError(step.name, rows.Height, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.Logger.Debug("Committed height",
		zap.Uint64("height", rows.Height),
		zap.Int("accounts", len(rows.Accounts)),
		zap.Int("transactions", len(rows.Transactions)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (db *DB) insertBlock(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	query := `
		INSERT INTO blocks (
			height, timestamp_ms, hash, creator_address, transaction_count, inherent_count,
			value, fees, size, difficulty, extra_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (height) DO UPDATE SET
			timestamp_ms = COALESCE(EXCLUDED.timestamp_ms, blocks.timestamp_ms),
			hash = COALESCE(EXCLUDED.hash, blocks.hash),
			creator_address = COALESCE(EXCLUDED.creator_address, blocks.creator_address),
			transaction_count = EXCLUDED.transaction_count,
			inherent_count = EXCLUDED.inherent_count,
			value = EXCLUDED.value,
			fees = EXCLUDED.fees,
			size = COALESCE(EXCLUDED.size, blocks.size),
			difficulty = COALESCE(EXCLUDED.difficulty, blocks.difficulty),
			extra_data = COALESCE(EXCLUDED.extra_data, blocks.extra_data)
	`
	b := rows.Block
	_, err := exec.Exec(ctx, query,
		b.Height, millis(b.Timestamp), b.Hash, b.CreatorAddress, b.TransactionCount, b.InherentCount,
		b.Value, b.Fees, b.Size, b.Difficulty, b.ExtraData,
	)
	return err
}

func (db *DB) insertEpoch(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	if rows.Epoch == nil {
		return nil
	}
	query := `
		INSERT INTO epochs (number, block_height, elected_validators, validator_slots, votes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (number) DO UPDATE SET
			block_height = EXCLUDED.block_height,
			elected_validators = EXCLUDED.elected_validators,
			validator_slots = EXCLUDED.validator_slots,
			votes = EXCLUDED.votes
	`
	e := rows.Epoch
	_, err := exec.Exec(ctx, query, e.Number, e.BlockHeight, e.ElectedValidators, e.ValidatorSlots, e.Votes)
	return err
}

// insertAccounts upserts account deltas. first_seen never moves; last_* coalesce unless the
// row was recomputed after a fork, in which case NULL is a real value.
func (db *DB) insertAccounts(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	accounts := rows.AccountList()
	if len(accounts) == 0 {
		return nil
	}
	query := `
		INSERT INTO accounts (address, type, balance, creation_data, first_seen, last_sent, last_received)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			type = EXCLUDED.type,
			balance = EXCLUDED.balance,
			creation_data = COALESCE(EXCLUDED.creation_data, accounts.creation_data),
			last_sent = CASE WHEN $8::boolean THEN EXCLUDED.last_sent
				ELSE COALESCE(EXCLUDED.last_sent, accounts.last_sent) END,
			last_received = CASE WHEN $8::boolean THEN EXCLUDED.last_received
				ELSE COALESCE(EXCLUDED.last_received, accounts.last_received) END
	`
	batch := &pgx.Batch{}
	for _, a := range accounts {
		batch.Queue(query,
			a.Address, a.Type, a.Balance, a.CreationData, a.FirstSeen, a.LastSent, a.LastReceived, a.Recomputed,
		)
	}
	return db.executeBatch(ctx, exec, batch)
}

func (db *DB) insertVestingOwners(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	if len(rows.VestingOwners) == 0 {
		return nil
	}
	query := `
		INSERT INTO vesting_owners (address, owner, block_height)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			block_height = LEAST(EXCLUDED.block_height, vesting_owners.block_height)
	`
	batch := &pgx.Batch{}
	for _, v := range rows.VestingOwners {
		batch.Queue(query, v.Address, v.Owner, v.BlockHeight)
	}
	return db.executeBatch(ctx, exec, batch)
}

// insertTransactions confirms pending rows in place; transaction content is immutable once written.
func (db *DB) insertTransactions(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	if len(rows.Transactions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tx := range rows.Transactions {
		queueTransaction(batch, tx, `
			ON CONFLICT (hash) DO UPDATE SET
				block_height = COALESCE(EXCLUDED.block_height, transactions.block_height),
				timestamp_ms = COALESCE(EXCLUDED.timestamp_ms, transactions.timestamp_ms),
				proof = COALESCE(EXCLUDED.proof, transactions.proof),
				related_addresses = COALESCE(EXCLUDED.related_addresses, transactions.related_addresses)
		`)
	}
	return db.executeBatch(ctx, exec, batch)
}

func queueTransaction(batch *pgx.Batch, tx *chainmodels.Transaction, onConflict string) {
	query := `
		INSERT INTO transactions (
			hash, block_height, timestamp_ms, sender_address, sender_type, sender_data,
			recipient_address, recipient_type, recipient_data, value, fee,
			validity_start_height, flags, proof, related_addresses
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	` + onConflict
	batch.Queue(query,
		tx.Hash, tx.BlockHeight, millis(tx.Timestamp), tx.SenderAddress, tx.SenderType, tx.SenderData,
		tx.RecipientAddress, tx.RecipientType, tx.RecipientData, tx.Value, tx.Fee,
		tx.ValidityStartHeight, tx.Flags, tx.Proof, tx.RelatedAddresses,
	)
}

// replaceInherents swaps the height's inherent set; they have no natural key to upsert on.
func (db *DB) replaceInherents(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM inherents WHERE block_height = $1`, rows.Height)
	query := `
		INSERT INTO inherents (block_height, timestamp_ms, type, validator_address, target, value, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, i := range rows.Inherents {
		batch.Queue(query, i.BlockHeight, i.Timestamp.UnixMilli(), i.Type, i.ValidatorAddress, i.Target, i.Value, i.Data)
	}
	return db.executeBatch(ctx, exec, batch)
}

func (db *DB) insertPreregistrations(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	if len(rows.Preregistrations) == 0 {
		return nil
	}
	query := `
		INSERT INTO validator_preregistrations (
			address, transaction_01, transaction_02, transaction_03, transaction_04, transaction_05,
			transaction_06, deposit_transaction, transaction_01_height, deposit_transaction_height
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO UPDATE SET
			transaction_01 = COALESCE(EXCLUDED.transaction_01, validator_preregistrations.transaction_01),
			transaction_02 = COALESCE(EXCLUDED.transaction_02, validator_preregistrations.transaction_02),
			transaction_03 = COALESCE(EXCLUDED.transaction_03, validator_preregistrations.transaction_03),
			transaction_04 = COALESCE(EXCLUDED.transaction_04, validator_preregistrations.transaction_04),
			transaction_05 = COALESCE(EXCLUDED.transaction_05, validator_preregistrations.transaction_05),
			transaction_06 = COALESCE(EXCLUDED.transaction_06, validator_preregistrations.transaction_06),
			deposit_transaction = COALESCE(EXCLUDED.deposit_transaction, validator_preregistrations.deposit_transaction),
			transaction_01_height = COALESCE(EXCLUDED.transaction_01_height, validator_preregistrations.transaction_01_height),
			deposit_transaction_height = COALESCE(EXCLUDED.deposit_transaction_height, validator_preregistrations.deposit_transaction_height)
	`
	batch := &pgx.Batch{}
	for _, v := range sortedValues(rows.Preregistrations) {
		batch.Queue(query,
			v.Address, v.Transactions[0], v.Transactions[1], v.Transactions[2], v.Transactions[3],
			v.Transactions[4], v.Transactions[5], v.DepositTransaction, v.Transaction01Height, v.DepositTransactionHeight,
		)
	}
	return db.executeBatch(ctx, exec, batch)
}

// insertStakers unions the transaction arrays; the delegation follows the newest transaction.
func (db *DB) insertStakers(ctx context.Context, exec postgres.Executor, rows *chainmodels.RowSet) error {
	if len(rows.Stakers) == 0 {
		return nil
	}
	query := `
		INSERT INTO prestaking_stakers (
			address, delegation, transactions, first_transaction_height, latest_transaction_height
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			delegation = CASE
				WHEN EXCLUDED.latest_transaction_height >= prestaking_stakers.latest_transaction_height
				THEN EXCLUDED.delegation ELSE prestaking_stakers.delegation END,
			transactions = prestaking_stakers.transactions || ARRAY(
				SELECT t FROM unnest(EXCLUDED.transactions) AS t
				WHERE t <> ALL(prestaking_stakers.transactions)
			),
			first_transaction_height = LEAST(EXCLUDED.first_transaction_height, prestaking_stakers.first_transaction_height),
			latest_transaction_height = GREATEST(EXCLUDED.latest_transaction_height, prestaking_stakers.latest_transaction_height)
	`
	batch := &pgx.Batch{}
	for _, s := range sortedValues(rows.Stakers) {
		batch.Queue(query, s.Address, s.Delegation, s.Transactions, s.FirstTransactionHeight, s.LatestTransactionHeight)
	}
	return db.executeBatch(ctx, exec, batch)
}

// InsertPendingTransactions writes mempool transactions; rows already present are left alone.
func (db *DB) InsertPendingTransactions(ctx context.Context, txs []*chainmodels.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, tx := range txs {
		queueTransaction(batch, tx, `ON CONFLICT (hash) DO NOTHING`)
	}
	if err := db.executeBatch(ctx, db.Pool, batch); err != nil {
		return fmt.Errorf("failed to insert pending transactions: %w", err)
	}
	return nil
}

func (db *DB) executeBatch(ctx context.Context, exec postgres.Executor, batch *pgx.Batch) error {
	br := exec.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d failed: %w", i, err)
		}
	}
	return nil
}

func fmtInsertError(entity string, height uint64, err error) error {
	if err != nil {
		return fmt.Errorf("failed to insert %s at height %d: %w", entity, height, err)
	}
	return nil
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func sortedValues[T any](m map[string]*T) []*T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
