package nimiq

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/canopy-network/nimiqx/pkg/utils"
)

const (
	// AddressLength is the size of a raw address in bytes.
	AddressLength = 20
	// UserFriendlyLength is the grouped form length including spaces.
	UserFriendlyLength = 44

	countryCode    = "NQ"
	base32Alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVXY"
)

var (
	addressEncoding = base32.NewEncoding(base32Alphabet).WithPadding(base32.NoPadding)

	ErrAddressLength   = errors.New("nimiq: invalid address length")
	ErrAddressCountry  = errors.New("nimiq: invalid country code")
	ErrAddressChecksum = errors.New("nimiq: invalid address checksum")
)

// Address is a raw 20 byte account address.
type Address [AddressLength]byte

// AddressFromBytes copies the first 20 bytes of b.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) < AddressLength {
		return a, ErrAddressLength
	}
	copy(a[:], b[:AddressLength])
	return a, nil
}

// AddressFromHex parses the first 40 hex characters of s.
func AddressFromHex(s string) (Address, error) {
	s = utils.Trim0x(s)
	if len(s) < AddressLength*2 {
		return Address{}, ErrAddressLength
	}
	raw, err := hex.DecodeString(s[:AddressLength*2])
	if err != nil {
		return Address{}, fmt.Errorf("nimiq: decode address hex: %w", err)
	}
	return AddressFromBytes(raw)
}

// ParseUserFriendly decodes and validates "NQxx XXXX ..." with or without spaces.
func ParseUserFriendly(s string) (Address, error) {
	compact := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(compact) != 36 {
		return Address{}, ErrAddressLength
	}
	if compact[:2] != countryCode {
		return Address{}, ErrAddressCountry
	}
	if ibanCheck(compact[4:]+compact[:4]) != 1 {
		return Address{}, ErrAddressChecksum
	}
	raw, err := addressEncoding.DecodeString(compact[4:])
	if err != nil {
		return Address{}, fmt.Errorf("nimiq: decode address: %w", err)
	}
	return AddressFromBytes(raw)
}

// IsValidUserFriendly reports whether s parses as an address.
func IsValidUserFriendly(s string) bool {
	_, err := ParseUserFriendly(s)
	return err == nil
}

// UserFriendly renders the address in its grouped, checksummed form.
func (a Address) UserFriendly() string {
	body := addressEncoding.EncodeToString(a[:])
	check := fmt.Sprintf("%02d", 98-ibanCheck(body+countryCode+"00"))
	compact := countryCode + check + body

	var b strings.Builder
	b.Grow(UserFriendlyLength)
	for i := 0; i < len(compact); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(compact[i : i+4])
	}
	return b.String()
}

func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.UserFriendly()
}

// ibanCheck computes the ISO 7064 mod-97 remainder with letters expanded to two digits.
func ibanCheck(s string) int {
	rem := 0
	feed := func(d int) { rem = (rem*10 + d) % 97 }
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			feed(int(c - '0'))
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			feed(v / 10)
			feed(v % 10)
		case c >= 'a' && c <= 'z':
			v := int(c-'a') + 10
			feed(v / 10)
			feed(v % 10)
		}
	}
	return rem
}
