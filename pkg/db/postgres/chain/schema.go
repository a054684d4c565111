package chain

import (
	"context"
)

func (db *DB) initBlocks(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS blocks (
			height BIGINT PRIMARY KEY,
			timestamp_ms BIGINT,
			hash TEXT UNIQUE,
			creator_address TEXT,
			transaction_count INTEGER NOT NULL DEFAULT 0,
			inherent_count INTEGER NOT NULL DEFAULT 0,
			value BIGINT NOT NULL DEFAULT 0,
			fees BIGINT NOT NULL DEFAULT 0,
			size BIGINT,
			difficulty DOUBLE PRECISION,
			extra_data BYTEA
		);

		CREATE INDEX IF NOT EXISTS idx_blocks_creator ON blocks(creator_address);
		CREATE INDEX IF NOT EXISTS idx_blocks_timestamp ON blocks(timestamp_ms);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initAccounts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			type SMALLINT NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			creation_data BYTEA,
			first_seen BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
			last_sent BIGINT REFERENCES blocks(height) ON DELETE SET NULL,
			last_received BIGINT REFERENCES blocks(height) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_first_seen ON accounts(first_seen);
		CREATE INDEX IF NOT EXISTS idx_accounts_last_sent ON accounts(last_sent);
		CREATE INDEX IF NOT EXISTS idx_accounts_last_received ON accounts(last_received);
	`
	return db.Exec(ctx, query)
}

// Pending transactions are rows with a NULL block_height; their addresses may be unknown accounts.
func (db *DB) initTransactions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS transactions (
			hash TEXT PRIMARY KEY,
			block_height BIGINT REFERENCES blocks(height) ON DELETE CASCADE,
			timestamp_ms BIGINT,
			sender_address TEXT NOT NULL,
			sender_type SMALLINT NOT NULL DEFAULT 0,
			sender_data BYTEA,
			recipient_address TEXT NOT NULL,
			recipient_type SMALLINT NOT NULL DEFAULT 0,
			recipient_data BYTEA,
			value BIGINT NOT NULL DEFAULT 0,
			fee BIGINT NOT NULL DEFAULT 0,
			validity_start_height BIGINT NOT NULL DEFAULT 0,
			flags SMALLINT NOT NULL DEFAULT 0,
			proof BYTEA,
			related_addresses TEXT[]
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_block_height ON transactions(block_height);
		CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_address, block_height);
		CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions(recipient_address, block_height);
		CREATE INDEX IF NOT EXISTS idx_transactions_pending ON transactions(hash) WHERE block_height IS NULL;
	`
	return db.Exec(ctx, query)
}

func (db *DB) initInherents(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS inherents (
			id BIGSERIAL PRIMARY KEY,
			block_height BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
			timestamp_ms BIGINT NOT NULL,
			type TEXT NOT NULL,
			validator_address TEXT NOT NULL,
			target TEXT,
			value BIGINT,
			data JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_inherents_block_height ON inherents(block_height);
		CREATE INDEX IF NOT EXISTS idx_inherents_validator ON inherents(validator_address);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initEpochs(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS epochs (
			number BIGINT PRIMARY KEY,
			block_height BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
			elected_validators TEXT[] NOT NULL,
			validator_slots INTEGER[] NOT NULL,
			votes INTEGER NOT NULL
		);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initVestingOwners(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS vesting_owners (
			address TEXT PRIMARY KEY REFERENCES accounts(address) ON DELETE CASCADE,
			owner TEXT NOT NULL,
			block_height BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_vesting_owners_owner ON vesting_owners(owner);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initValidatorPreregistrations(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS validator_preregistrations (
			address TEXT PRIMARY KEY REFERENCES accounts(address) ON DELETE CASCADE,
			transaction_01 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_02 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_03 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_04 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_05 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_06 TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			deposit_transaction TEXT REFERENCES transactions(hash) ON DELETE SET NULL,
			transaction_01_height BIGINT REFERENCES blocks(height) ON DELETE SET NULL,
			deposit_transaction_height BIGINT REFERENCES blocks(height) ON DELETE SET NULL
		);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initPrestakingStakers(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS prestaking_stakers (
			address TEXT PRIMARY KEY REFERENCES accounts(address) ON DELETE CASCADE,
			delegation TEXT NOT NULL,
			transactions TEXT[] NOT NULL,
			first_transaction_height BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
			latest_transaction_height BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_prestaking_stakers_delegation ON prestaking_stakers(delegation);
	`
	return db.Exec(ctx, query)
}
