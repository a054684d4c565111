package transform

import (
	"testing"
	"time"

	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	policy = nimiq.PolicyFor(nimiq.Mainnet)

	alice     = nimiq.Address{1}.UserFriendly()
	bob       = nimiq.Address{2}.UserFriendly()
	producer  = nimiq.Address{3}.UserFriendly()
	validator = nimiq.Address{4}.UserFriendly()
)

func at(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func transfer(hash, from, to string, value, fee uint64) rpc.Transaction {
	return rpc.Transaction{Hash: hash, From: from, To: to, Value: value, Fee: fee}
}

func TestDeriveMicroBlock(t *testing.T) {
	h := policy.TransitionBlock + 1
	tx := transfer("t1", alice, bob, 500, 2)
	tx.RelatedAddresses = []string{alice, bob, validator}
	in := Input{
		Height: h,
		Block: &rpc.Block{
			Number: h, Hash: "b1", Timestamp: at(100), Size: utils.Ptr(uint64(300)),
			Micro: &rpc.MicroBlock{Producer: producer},
		},
		Transactions: []rpc.Transaction{tx, transfer("t2", bob, producer, 100, 1)},
		Inherents:    []rpc.Inherent{{BlockNumber: h, BlockTime: at(100), Type: "reward", ValidatorAddress: validator}},
	}

	rows := Derive(policy, in)
	require.NotNil(t, rows.Block)
	assert.Equal(t, "b1", *rows.Block.Hash)
	assert.Equal(t, producer, *rows.Block.CreatorAddress)
	assert.Equal(t, uint32(2), rows.Block.TransactionCount)
	assert.Equal(t, uint32(1), rows.Block.InherentCount)
	assert.Equal(t, uint64(600), rows.Block.Value)
	assert.Equal(t, uint64(3), rows.Block.Fees)
	assert.Nil(t, rows.Epoch)

	require.Len(t, rows.Transactions, 2)
	assert.Equal(t, []string{validator}, rows.Transactions[0].RelatedAddresses)
	assert.Equal(t, h, *rows.Transactions[0].BlockHeight)
	assert.Equal(t, at(100), *rows.Transactions[0].Timestamp, "missing tx timestamps fall back to the block")
	assert.Equal(t, []string{"t1", "t2"}, rows.IncludedHashes)

	// bob both received and sent; the producer both produced and received.
	require.Len(t, rows.Accounts, 3)
	assert.Equal(t, h, *rows.Accounts[bob].LastSent)
	assert.Equal(t, h, *rows.Accounts[bob].LastReceived)
	assert.Equal(t, h, *rows.Accounts[producer].LastReceived)
	assert.Nil(t, rows.Accounts[producer].LastSent)
	assert.Nil(t, rows.Accounts[alice].LastReceived)

	require.Len(t, rows.Inherents, 1)
	assert.Equal(t, "reward", rows.Inherents[0].Type)
}

func TestDerivePoWBlock(t *testing.T) {
	in := Input{
		Height: 1000,
		Block: &rpc.Block{
			Number: 1000, Hash: "pow", Timestamp: at(5),
			PoW: &rpc.PoWBlock{Miner: alice, Difficulty: 12.5},
		},
	}
	rows := Derive(policy, in)
	assert.Equal(t, alice, *rows.Block.CreatorAddress)
	assert.Equal(t, 12.5, *rows.Block.Difficulty)
	assert.Equal(t, uint64(1000), *rows.Accounts[alice].LastReceived)
	assert.Equal(t, uint8(rpc.AccountBasic), rows.Accounts[alice].Type)
}

func TestDeriveMacroElectionBlock(t *testing.T) {
	h := policy.TransitionBlock + nimiq.BlocksPerEpoch
	signers := 400
	in := Input{
		Height: h,
		Block: &rpc.Block{
			Number: h, Hash: "m", Timestamp: at(9),
			Macro: &rpc.MacroBlock{
				Epoch: 1, IsElection: true, Signers: &signers,
				Slots: []rpc.ValidatorSlots{{Validator: validator, NumSlots: 300}, {Validator: producer, NumSlots: 212}},
			},
		},
		Transactions: []rpc.Transaction{transfer("tm", alice, bob, 7, 0)},
	}

	rows := Derive(policy, in)
	assert.Zero(t, rows.Block.TransactionCount)
	assert.Nil(t, rows.Block.CreatorAddress)
	assert.Empty(t, rows.Transactions, "macro block transactions are not stored")
	assert.Equal(t, []string{"tm"}, rows.IncludedHashes)
	assert.Contains(t, rows.Accounts, alice, "macro block transactions still touch accounts")
	assert.Contains(t, rows.Accounts, bob)

	require.NotNil(t, rows.Epoch)
	assert.Equal(t, uint64(1), rows.Epoch.Number)
	assert.Equal(t, []string{validator, producer}, rows.Epoch.ElectedValidators)
	assert.Equal(t, []int32{300, 212}, rows.Epoch.ValidatorSlots)
	assert.Equal(t, int32(400), rows.Epoch.Votes)
}

func TestDeriveTransitionBlockVotes(t *testing.T) {
	h := policy.TransitionBlock
	rows := Derive(policy, Input{
		Height: h,
		Block:  &rpc.Block{Number: h, Hash: "genesis", Macro: &rpc.MacroBlock{IsElection: true}},
	})
	require.NotNil(t, rows.Epoch)
	assert.Equal(t, int32(nimiq.TransitionVotes), rows.Epoch.Votes)
}

func TestDeriveWithoutBlock(t *testing.T) {
	h := policy.TransitionBlock + 5
	ts := at(42)
	tx := transfer("t", alice, bob, 1, 0)
	tx.Timestamp = &ts

	rows := Derive(policy, Input{Height: h, Transactions: []rpc.Transaction{tx}})
	assert.Nil(t, rows.Block.Hash)
	assert.Equal(t, ts, *rows.Block.Timestamp)
	assert.Equal(t, uint32(1), rows.Block.TransactionCount)

	rows = Derive(policy, Input{Height: h, Inherents: []rpc.Inherent{{BlockTime: at(43), Type: "reward"}}})
	assert.Equal(t, at(43), *rows.Block.Timestamp)

	rows = Derive(policy, Input{Height: h})
	assert.Nil(t, rows.Block.Timestamp)

	// Without a block object the policy decides whether the height is a macro block.
	macroHeight := policy.TransitionBlock + nimiq.BlocksPerBatch
	require.True(t, policy.IsMacroBlockAt(macroHeight))
	rows = Derive(policy, Input{Height: macroHeight, Transactions: []rpc.Transaction{tx}})
	assert.Zero(t, rows.Block.TransactionCount)
	assert.Empty(t, rows.Transactions)
}

func TestDeriveCreationDataAndVestingOwner(t *testing.T) {
	owner := nimiq.Address{9, 9, 9}
	payload := append(owner[:], 0, 0, 0, 1)
	tx := transfer("create", alice, bob, 10, 0)
	tx.ToType = rpc.AccountVesting
	tx.RecipientData = payload

	rows := Derive(policy, Input{Height: 10, Block: &rpc.Block{Number: 10, Hash: "x", PoW: &rpc.PoWBlock{Miner: producer}}, Transactions: []rpc.Transaction{tx}})
	assert.Equal(t, payload, rows.Accounts[bob].CreationData)
	assert.Equal(t, uint8(rpc.AccountVesting), rows.Accounts[bob].Type)
	require.Len(t, rows.VestingOwners, 1)
	assert.Equal(t, bob, rows.VestingOwners[0].Address)
	assert.Equal(t, owner.UserFriendly(), rows.VestingOwners[0].Owner)

	short := tx
	short.RecipientData = owner[:10]
	rows = Derive(policy, Input{Height: 10, Transactions: []rpc.Transaction{short}})
	assert.Empty(t, rows.VestingOwners)

	basic := transfer("plain", alice, bob, 10, 0)
	basic.RecipientData = []byte("memo")
	rows = Derive(policy, Input{Height: 10, Transactions: []rpc.Transaction{basic}})
	assert.Nil(t, rows.Accounts[bob].CreationData)
}

func preregPart(hash string, part byte) rpc.Transaction {
	data := make([]byte, nimiq.PreregistrationData)
	data[0] = part
	tx := transfer(hash, alice, nimiq.BurnAddress, 1, 0)
	tx.RecipientData = data
	return tx
}

func TestDerivePreregistration(t *testing.T) {
	h := nimiq.RegistrationWindow.Start + 10
	deposit := transfer("dep", alice, nimiq.BurnAddress, nimiq.ValidatorDeposit, 0)
	rows := Derive(policy, Input{Height: h, Transactions: []rpc.Transaction{
		preregPart("p1", 1), preregPart("p6", 6), preregPart("p9", 9), deposit,
	}})

	reg, ok := rows.Preregistrations[alice]
	require.True(t, ok)
	assert.Equal(t, "p1", *reg.Transactions[0])
	assert.Equal(t, "p6", *reg.Transactions[5])
	assert.Nil(t, reg.Transactions[1])
	assert.Equal(t, h, *reg.Transaction01Height)
	assert.Equal(t, "dep", *reg.DepositTransaction)
	assert.Equal(t, h, *reg.DepositTransactionHeight)

	rows = Derive(policy, Input{Height: nimiq.RegistrationWindow.End + 1, Transactions: []rpc.Transaction{preregPart("late", 1)}})
	assert.Empty(t, rows.Preregistrations)
	require.Len(t, rows.Transactions, 1, "the transaction itself is still recorded")
}

func TestDerivePrestaking(t *testing.T) {
	h := nimiq.PrestakingWindow.Start
	stake := func(hash string, value uint64, data []byte) rpc.Transaction {
		tx := transfer(hash, alice, nimiq.BurnAddress, value, 0)
		tx.RecipientData = data
		return tx
	}

	rows := Derive(policy, Input{Height: h, Transactions: []rpc.Transaction{
		stake("ok", nimiq.MinDelegation, []byte("  "+validator+"\n")),
	}})
	st, ok := rows.Stakers[alice]
	require.True(t, ok)
	assert.Equal(t, validator, st.Delegation)
	assert.Equal(t, []string{"ok"}, st.Transactions)
	assert.Equal(t, h, st.FirstTransactionHeight)

	badChecksum := []byte("NQ00" + validator[4:])
	for name, tx := range map[string]rpc.Transaction{
		"below minimum":  stake("low", nimiq.MinDelegation-1, []byte(validator)),
		"invalid utf8":   stake("utf", nimiq.MinDelegation, []byte{0xff, 0xfe}),
		"bad checksum":   stake("sum", nimiq.MinDelegation, badChecksum),
		"not an address": stake("txt", nimiq.MinDelegation, []byte("hello")),
	} {
		rows := Derive(policy, Input{Height: h, Transactions: []rpc.Transaction{tx}})
		assert.Empty(t, rows.Stakers, name)
		assert.Len(t, rows.Transactions, 1, name)
	}

	rows = Derive(policy, Input{Height: nimiq.PrestakingWindow.End + 1, Transactions: []rpc.Transaction{
		stake("late", nimiq.MinDelegation, []byte(validator)),
	}})
	assert.Empty(t, rows.Stakers)
}

func TestPendingRow(t *testing.T) {
	tx := transfer("p", alice, bob, 3, 1)
	row := PendingRow(&tx)
	assert.True(t, row.Pending())
	assert.Nil(t, row.Timestamp)
	assert.Equal(t, alice, row.SenderAddress)
}
