// Package account validates and converts bech32 account addresses.
package account

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// ErrInvalidAddress is returned for anything that is not a bech32 account address
var ErrInvalidAddress = errors.New("invalid address")

// decode returns the prefix and the raw 8 bit account bytes of a bech32 address
func decode(address string) (string, []byte, error) {
	if address == "" {
		return "", nil, fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}

	prefix, data, err := bech32.Decode(address)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	// cosmos accounts are 20 bytes, module and contract accounts 32
	if len(raw) != 20 && len(raw) != 32 {
		return "", nil, fmt.Errorf("%w: unexpected account length %d", ErrInvalidAddress, len(raw))
	}
	return prefix, raw, nil
}

func encode(prefix string, raw []byte) (string, error) {
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, data)
}

// IsValidAddress reports whether address is a bech32 account address.
// An empty prefix accepts any chain.
func IsValidAddress(address, prefix string) bool {
	decodedPrefix, _, err := decode(address)
	if err != nil {
		return false
	}
	return prefix == "" || decodedPrefix == prefix
}

// ConvertAddress re-encodes address with another chain prefix
func ConvertAddress(address, prefix string) (string, error) {
	_, raw, err := decode(address)
	if err != nil {
		return "", err
	}
	return encode(prefix, raw)
}

// NormalizeAddress accepts a bech32 address of any chain or 0x prefixed
// account bytes and returns the account encoded with prefix
func NormalizeAddress(address, prefix string) (string, error) {
	if IsEthAddress(address) {
		return ConvertFromHex(address, prefix)
	}
	if IsValidAddress(address, prefix) {
		return address, nil
	}
	return ConvertAddress(address, prefix)
}

// ConvertToHex returns the account bytes as 0x prefixed hex
func ConvertToHex(address string) (string, error) {
	_, raw, err := decode(address)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw), nil
}

// ConvertFromHex encodes 0x prefixed account bytes as a bech32 address
func ConvertFromHex(hexAddress, prefix string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexAddress, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(raw) != 20 && len(raw) != 32 {
		return "", fmt.Errorf("%w: unexpected account length %d", ErrInvalidAddress, len(raw))
	}
	return encode(prefix, raw)
}

// IsEthAddress reports whether address looks like a 0x prefixed EVM address
func IsEthAddress(address string) bool {
	return len(address) == 42 && strings.HasPrefix(address, "0x")
}

// Shorten keeps the first and last n characters, e.g. "osmo1q...xyz"
func Shorten(address string, n int) string {
	if n <= 0 || len(address) <= 2*n+3 {
		return address
	}
	return address[:n] + "..." + address[len(address)-n:]
}
