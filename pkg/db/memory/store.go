package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/canopy-network/nimiqx/pkg/db"
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"go.uber.org/zap"
)

// Store is an in-process ChainStore. Cascades that Postgres expresses as foreign keys
// are applied explicitly, in dependency order, by DeleteBlocksFrom.
type Store struct {
	logger *zap.Logger

	mu        sync.RWMutex
	blocks    map[uint64]*chainmodels.Block
	accounts  map[string]*chainmodels.Account
	txs       map[string]*chainmodels.Transaction
	inherents map[uint64][]*chainmodels.Inherent
	epochs    map[uint64]*chainmodels.Epoch
	vesting   map[string]*chainmodels.VestingOwner
	prereg    map[string]*chainmodels.ValidatorPreregistration
	stakers   map[string]*chainmodels.PrestakingStaker

	commitLog []uint64
}

var _ db.ChainStore = (*Store)(nil)

func New(logger *zap.Logger) *Store {
	return &Store{
		logger:    logger.With(zap.String("component", "memory_store")),
		blocks:    map[uint64]*chainmodels.Block{},
		accounts:  map[string]*chainmodels.Account{},
		txs:       map[string]*chainmodels.Transaction{},
		inherents: map[uint64][]*chainmodels.Inherent{},
		epochs:    map[uint64]*chainmodels.Epoch{},
		vesting:   map[string]*chainmodels.VestingOwner{},
		prereg:    map[string]*chainmodels.ValidatorPreregistration{},
		stakers:   map[string]*chainmodels.PrestakingStaker{},
	}
}

func (s *Store) CurrentTip(context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tip uint64
	found := false
	for h := range s.blocks {
		if !found || h > tip {
			tip, found = h, true
		}
	}
	return tip, found, nil
}

func (s *Store) BlockHashAt(_ context.Context, height uint64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[height]
	if !ok || b.Hash == nil {
		return "", false, nil
	}
	return *b.Hash, true, nil
}

func (s *Store) MostRecentTxHeight(_ context.Context, address string, role db.Role) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best uint64
	found := false
	for _, tx := range s.txs {
		if tx.BlockHeight == nil {
			continue
		}
		match := tx.SenderAddress == address
		if role == db.RoleRecipient {
			match = tx.RecipientAddress == address
		}
		if match && (!found || *tx.BlockHeight > best) {
			best, found = *tx.BlockHeight, true
		}
	}
	return best, found, nil
}

func (s *Store) MostRecentMinedHeight(_ context.Context, address string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best uint64
	found := false
	for h, b := range s.blocks {
		if b.CreatorAddress != nil && *b.CreatorAddress == address && (!found || h > best) {
			best, found = h, true
		}
	}
	return best, found, nil
}

func (s *Store) GetAccount(_ context.Context, address string) (*chainmodels.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[address]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *Store) AffectedAddresses(_ context.Context, from uint64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for addr, a := range s.accounts {
		if a.FirstSeen >= from {
			continue
		}
		if atOrAbove(a.LastSent, from) || atOrAbove(a.LastReceived, from) {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out, nil
}

func atOrAbove(h *uint64, from uint64) bool {
	return h != nil && *h >= from
}

// txHeight returns the inclusion height of a stored transaction.
func (s *Store) txHeight(hash string) (uint64, bool) {
	tx, ok := s.txs[hash]
	if !ok || tx.BlockHeight == nil {
		return 0, false
	}
	return *tx.BlockHeight, true
}

func (s *Store) DeleteBlocksFrom(_ context.Context, from uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deletedAccounts := map[string]bool{}
	for addr, a := range s.accounts {
		if a.FirstSeen >= from {
			deletedAccounts[addr] = true
		}
	}

	// Order matters: side tables read transaction heights before transactions go.
	steps := []struct {
		name string
		fn   func()
	}{
		{"prestaking_stakers", func() { s.pruneStakers(from, deletedAccounts) }},
		{"validator_preregistrations", func() { s.prunePreregistrations(from, deletedAccounts) }},
		{"vesting_owners", func() {
			for addr, v := range s.vesting {
				if v.BlockHeight >= from || deletedAccounts[addr] {
					delete(s.vesting, addr)
				}
			}
		}},
		{"inherents", func() {
			for h := range s.inherents {
				if h >= from {
					delete(s.inherents, h)
				}
			}
		}},
		{"epochs", func() {
			for n, e := range s.epochs {
				if e.BlockHeight >= from {
					delete(s.epochs, n)
				}
			}
		}},
		{"transactions", func() {
			for hash, tx := range s.txs {
				if atOrAbove(tx.BlockHeight, from) {
					delete(s.txs, hash)
				}
			}
		}},
		{"accounts", func() {
			for addr, a := range s.accounts {
				if deletedAccounts[addr] {
					delete(s.accounts, addr)
					continue
				}
				if atOrAbove(a.LastSent, from) {
					a.LastSent = nil
				}
				if atOrAbove(a.LastReceived, from) {
					a.LastReceived = nil
				}
			}
		}},
		{"blocks", func() {
			for h := range s.blocks {
				if h >= from {
					delete(s.blocks, h)
				}
			}
		}},
	}
	for _, step := range steps {
		step.fn()
		s.logger.Debug("Deleted rows from height", zap.String("table", step.name), zap.Uint64("from", from))
	}
	return nil
}

func (s *Store) pruneStakers(from uint64, deletedAccounts map[string]bool) {
	for addr, st := range s.stakers {
		if st.FirstTransactionHeight >= from || deletedAccounts[addr] {
			delete(s.stakers, addr)
			continue
		}
		if st.LatestTransactionHeight < from {
			continue
		}
		known := make(map[string]chainmodels.StakerTx, len(st.Transactions))
		for _, hash := range st.Transactions {
			if tx, ok := s.txs[hash]; ok && tx.BlockHeight != nil {
				known[hash] = chainmodels.StakerTx{Height: *tx.BlockHeight, RecipientData: tx.RecipientData}
			}
		}
		if !st.Prune(from, known) {
			delete(s.stakers, addr)
		}
	}
}

func (s *Store) prunePreregistrations(from uint64, deletedAccounts map[string]bool) {
	dropRef := func(ref *string) *string {
		if ref == nil {
			return nil
		}
		if h, ok := s.txHeight(*ref); ok && h >= from {
			return nil
		}
		return ref
	}
	for addr, v := range s.prereg {
		if deletedAccounts[addr] {
			delete(s.prereg, addr)
			continue
		}
		for i := range v.Transactions {
			v.Transactions[i] = dropRef(v.Transactions[i])
		}
		v.DepositTransaction = dropRef(v.DepositTransaction)
		if atOrAbove(v.Transaction01Height, from) {
			v.Transaction01Height = nil
		}
		if atOrAbove(v.DepositTransactionHeight, from) {
			v.DepositTransactionHeight = nil
		}
		if v.Empty() {
			delete(s.prereg, addr)
		}
	}
}

// Commit validates references first and then applies every row, so a failed commit leaves no trace.
func (s *Store) Commit(_ context.Context, rows *chainmodels.RowSet) error {
	if rows == nil || rows.Block == nil {
		return fmt.Errorf("commit: row set has no block")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	blockExists := func(h uint64) bool {
		_, ok := s.blocks[h]
		return ok || h == rows.Block.Height
	}
	for _, a := range rows.Accounts {
		if _, exists := s.accounts[a.Address]; !exists && !blockExists(a.FirstSeen) {
			return fmt.Errorf("commit #%d: account %s first_seen %d references missing block", rows.Height, a.Address, a.FirstSeen)
		}
	}
	for _, tx := range rows.Transactions {
		if tx.BlockHeight != nil && !blockExists(*tx.BlockHeight) {
			return fmt.Errorf("commit #%d: transaction %s references missing block %d", rows.Height, tx.Hash, *tx.BlockHeight)
		}
	}
	if rows.Block.Hash != nil {
		for h, other := range s.blocks {
			if h != rows.Block.Height && other.Hash != nil && *other.Hash == *rows.Block.Hash {
				return fmt.Errorf("commit #%d: duplicate block hash %s", rows.Height, *rows.Block.Hash)
			}
		}
	}

	s.blocks[rows.Block.Height] = chainmodels.MergeBlock(s.blocks[rows.Block.Height], rows.Block)
	if rows.Epoch != nil {
		e := *rows.Epoch
		s.epochs[e.Number] = &e
	}
	for _, a := range rows.AccountList() {
		s.accounts[a.Address] = chainmodels.MergeAccount(s.accounts[a.Address], a)
	}
	for _, v := range rows.VestingOwners {
		s.vesting[v.Address] = chainmodels.MergeVestingOwner(s.vesting[v.Address], v)
	}
	for _, tx := range rows.Transactions {
		s.txs[tx.Hash] = chainmodels.MergeTransaction(s.txs[tx.Hash], tx)
	}
	inh := make([]*chainmodels.Inherent, 0, len(rows.Inherents))
	for _, i := range rows.Inherents {
		c := *i
		inh = append(inh, &c)
	}
	if len(inh) > 0 {
		s.inherents[rows.Height] = inh
	} else {
		delete(s.inherents, rows.Height)
	}
	for addr, v := range rows.Preregistrations {
		s.prereg[addr] = chainmodels.MergeValidatorPreregistration(s.prereg[addr], v)
	}
	for addr, st := range rows.Stakers {
		s.stakers[addr] = chainmodels.MergePrestakingStaker(s.stakers[addr], st)
	}
	s.commitLog = append(s.commitLog, rows.Height)
	return nil
}

func (s *Store) InsertPendingTransactions(_ context.Context, txs []*chainmodels.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if _, exists := s.txs[tx.Hash]; exists {
			continue
		}
		c := *tx
		s.txs[tx.Hash] = &c
	}
	return nil
}

func (s *Store) DeletePendingTransaction(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[hash]
	if !ok || !tx.Pending() {
		return false, nil
	}
	delete(s.txs, hash)
	return true, nil
}

func (s *Store) DeletePendingTransactions(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, tx := range s.txs {
		if tx.Pending() {
			delete(s.txs, hash)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

// Read accessors for tests. Counts is also logged when the app stops.

func (s *Store) Block(height uint64) (*chainmodels.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[height]
	if !ok {
		return nil, false
	}
	c := *b
	return &c, true
}

func (s *Store) Transaction(hash string) (*chainmodels.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[hash]
	if !ok {
		return nil, false
	}
	c := *tx
	return &c, true
}

func (s *Store) Inherents(height uint64) []*chainmodels.Inherent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inherents[height])
}

func (s *Store) Epoch(number uint64) (*chainmodels.Epoch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.epochs[number]
	return e, ok
}

func (s *Store) VestingOwner(address string) (*chainmodels.VestingOwner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vesting[address]
	return v, ok
}

func (s *Store) Preregistration(address string) (*chainmodels.ValidatorPreregistration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prereg[address]
	return v, ok
}

func (s *Store) Staker(address string) (*chainmodels.PrestakingStaker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.stakers[address]
	return v, ok
}

// Counts returns row counts per table.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := 0
	for _, tx := range s.txs {
		if tx.Pending() {
			pending++
		}
	}
	return map[string]int{
		"blocks":                     len(s.blocks),
		"accounts":                   len(s.accounts),
		"transactions":               len(s.txs) - pending,
		"pending_transactions":       pending,
		"epochs":                     len(s.epochs),
		"vesting_owners":             len(s.vesting),
		"validator_preregistrations": len(s.prereg),
		"prestaking_stakers":         len(s.stakers),
	}
}

// CommitLog returns committed heights in commit order.
func (s *Store) CommitLog() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.commitLog)
}
