package nimiq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserFriendly_BurnAddress(t *testing.T) {
	var zero Address
	assert.Equal(t, BurnAddress, zero.UserFriendly())
	assert.Len(t, zero.UserFriendly(), UserFriendlyLength)
}

func TestUserFriendly_RoundTrip(t *testing.T) {
	a, err := AddressFromHex("0x" + strings.Repeat("ab", 20) + "ffff")
	require.NoError(t, err)

	uf := a.UserFriendly()
	assert.True(t, strings.HasPrefix(uf, "NQ"))

	back, err := ParseUserFriendly(strings.ToLower(uf))
	require.NoError(t, err)
	assert.Equal(t, a, back)

	back, err = ParseUserFriendly(strings.ReplaceAll(uf, " ", ""))
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestParseUserFriendly_Rejects(t *testing.T) {
	_, err := ParseUserFriendly("NQ08 0000 0000 0000 0000 0000 0000 0000 0000")
	assert.ErrorIs(t, err, ErrAddressChecksum)

	_, err = ParseUserFriendly("DE07 0000 0000 0000 0000 0000 0000 0000 0000")
	assert.ErrorIs(t, err, ErrAddressCountry)

	_, err = ParseUserFriendly("NQ07 0000")
	assert.ErrorIs(t, err, ErrAddressLength)

	assert.False(t, IsValidUserFriendly("not an address"))
}

func TestAddressFromHex_Short(t *testing.T) {
	_, err := AddressFromHex("abcd")
	assert.ErrorIs(t, err, ErrAddressLength)
}

func TestPolicy_MacroBlocks(t *testing.T) {
	p := PolicyFor(Mainnet)
	assert.Equal(t, uint64(3_456_000), p.TransitionBlock)

	assert.False(t, p.IsMacroBlockAt(p.TransitionBlock-1))
	assert.True(t, p.IsMacroBlockAt(p.TransitionBlock))
	assert.False(t, p.IsMacroBlockAt(p.TransitionBlock+1))
	assert.False(t, p.IsMacroBlockAt(p.TransitionBlock+59))
	assert.True(t, p.IsMacroBlockAt(p.TransitionBlock+60))
	assert.True(t, p.IsMacroBlockAt(p.TransitionBlock+120))
}

func TestPolicy_ElectionBlocksAndEpochs(t *testing.T) {
	p := PolicyFor(Testnet)
	assert.Equal(t, uint64(3_032_010), p.TransitionBlock)

	assert.True(t, p.IsElectionBlockAt(p.TransitionBlock))
	assert.False(t, p.IsElectionBlockAt(p.TransitionBlock+60))
	assert.True(t, p.IsElectionBlockAt(p.TransitionBlock+BlocksPerEpoch))

	assert.Equal(t, uint64(0), p.EpochAt(p.TransitionBlock))
	assert.Equal(t, uint64(1), p.EpochAt(p.TransitionBlock+1))
	assert.Equal(t, uint64(1), p.EpochAt(p.TransitionBlock+BlocksPerEpoch))
	assert.Equal(t, uint64(2), p.EpochAt(p.TransitionBlock+BlocksPerEpoch+1))
}

func TestParseNetwork(t *testing.T) {
	n, err := ParseNetwork("MainAlbatross")
	require.NoError(t, err)
	assert.Equal(t, Mainnet, n)

	n, err = ParseNetwork("")
	require.NoError(t, err)
	assert.Equal(t, Testnet, n)

	_, err = ParseNetwork("devnet")
	assert.Error(t, err)
}

func TestHeightRange(t *testing.T) {
	assert.True(t, RegistrationWindow.Contains(RegistrationWindow.Start))
	assert.True(t, RegistrationWindow.Contains(RegistrationWindow.End))
	assert.False(t, RegistrationWindow.Contains(RegistrationWindow.End+1))
	assert.Equal(t, uint64(10_000_000_000), ValidatorDeposit)
	assert.Equal(t, uint64(10_000_000), MinDelegation)
}
