package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/canopy-network/nimiqx/pkg/utils"
)

// AccountType is the numeric account tag stored alongside addresses.
type AccountType uint8

const (
	AccountBasic   AccountType = 0
	AccountVesting AccountType = 1
	AccountHTLC    AccountType = 2
	AccountStaking AccountType = 3
)

func (t AccountType) String() string {
	switch t {
	case AccountBasic:
		return "basic"
	case AccountVesting:
		return "vesting"
	case AccountHTLC:
		return "htlc"
	case AccountStaking:
		return "staking"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// UnmarshalJSON accepts both the numeric tag and the Albatross string names.
func (t *AccountType) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch strings.ToLower(s) {
		case "basic":
			*t = AccountBasic
		case "vesting":
			*t = AccountVesting
		case "htlc":
			*t = AccountHTLC
		case "staking", "staking-validator", "staking-delegation":
			*t = AccountStaking
		default:
			return fmt.Errorf("unknown account type %q", s)
		}
		return nil
	}
	var n uint8
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = AccountType(n)
	return nil
}

// HexBytes decodes hex strings (optionally 0x-prefixed); empty and null decode to nil.
type HexBytes []byte

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*h = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = utils.Trim0x(s)
	if s == "" {
		*h = nil
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hex bytes: %w", err)
	}
	*h = raw
	return nil
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	return json.Marshal(hex.EncodeToString(h))
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// flexFloat tolerates numbers encoded as JSON strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// BlockKind discriminates Block variants.
type BlockKind uint8

const (
	BlockKindPoW BlockKind = iota + 1
	BlockKindMicro
	BlockKindMacro
)

func (k BlockKind) String() string {
	switch k {
	case BlockKindPoW:
		return "pow"
	case BlockKindMicro:
		return "micro"
	case BlockKindMacro:
		return "macro"
	}
	return "unknown"
}

// Block is the protocol-neutral block. Exactly one of PoW, Micro, Macro is set.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	Size       *uint64
	ExtraData  []byte

	// Transactions is only populated when the block was requested with transactions.
	Transactions         []Transaction
	TransactionsIncluded bool

	PoW   *PoWBlock
	Micro *MicroBlock
	Macro *MacroBlock
}

// Kind returns the populated variant.
func (b *Block) Kind() BlockKind {
	switch {
	case b.PoW != nil:
		return BlockKindPoW
	case b.Macro != nil:
		return BlockKindMacro
	case b.Micro != nil:
		return BlockKindMicro
	}
	return 0
}

type PoWBlock struct {
	Miner      string
	Difficulty float64
}

type MicroBlock struct {
	Producer string
}

type MacroBlock struct {
	Epoch      uint64
	IsElection bool
	Slots      []ValidatorSlots
	// Signers is nil when the block carries no justification (the transition block).
	Signers *int
}

type ValidatorSlots struct {
	Validator string
	NumSlots  uint16
}

// Transaction is a block or mempool transaction. BlockNumber and Timestamp are nil while pending.
type Transaction struct {
	Hash                string
	BlockNumber         *uint64
	Timestamp           *time.Time
	From                string
	FromType            AccountType
	To                  string
	ToType              AccountType
	Value               uint64
	Fee                 uint64
	SenderData          []byte
	RecipientData       []byte
	Flags               uint8
	ValidityStartHeight uint64
	Proof               []byte
	RelatedAddresses    []string
}

// Inherent is a protocol generated event (reward, penalty, jail).
type Inherent struct {
	BlockNumber      uint64
	BlockTime        time.Time
	Type             string
	ValidatorAddress string
	Target           *string
	Value            *uint64
	// Data holds every type-specific field.
	Data map[string]any
}

// AccountSnapshot is the live state of an account.
type AccountSnapshot struct {
	Address string
	Type    AccountType
	Balance uint64
}
