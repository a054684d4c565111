package chain

import (
	"context"
	"fmt"
	"time"

	chainstore "github.com/canopy-network/nimiqx/pkg/db"
	"github.com/canopy-network/nimiqx/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the Postgres ChainStore for one network.
type DB struct {
	postgres.Client
	Network string
}

var _ chainstore.ChainStore = (*DB)(nil)

// NewWithPoolConfig connects and makes sure the schema exists.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, url, network string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("network", network),
		zap.String("component", poolConfig.Component),
	), url, poolConfig)
	if err != nil {
		return nil, err
	}

	chainDB := &DB{Client: client, Network: network}
	if err := chainDB.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return chainDB, nil
}

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Client.Close()
	return nil
}

// InitializeDB ensures the required tables exist. Tables are created in foreign key
// order, so this runs sequentially.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()
	db.Logger.Info("Initializing chain database", zap.String("network", db.Network))

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"blocks", db.initBlocks},
		{"accounts", db.initAccounts},
		{"transactions", db.initTransactions},
		{"inherents", db.initInherents},
		{"epochs", db.initEpochs},
		{"vesting_owners", db.initVestingOwners},
		{"validator_preregistrations", db.initValidatorPreregistrations},
		{"prestaking_stakers", db.initPrestakingStakers},
	}
	for _, op := range initOps {
		db.Logger.Debug("Initializing table", zap.String("table", op.name))
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Chain database initialized successfully",
		zap.String("network", db.Network),
		zap.Duration("duration", time.Since(initStart)))
	return nil
}
