package account_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-trade/trader/account"
)

const accountHex = "0x0102030405060708090a0b0c0d0e0f1011121314"

func osmoAddress(t *testing.T) string {
	t.Helper()
	addr, err := account.ConvertFromHex(accountHex, "osmo")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "osmo1"))
	return addr
}

func corrupt(addr string) string {
	last := addr[len(addr)-1]
	if last == 'q' {
		return addr[:len(addr)-1] + "p"
	}
	return addr[:len(addr)-1] + "q"
}

func TestIsValidAddress(t *testing.T) {
	addr := osmoAddress(t)

	assert.True(t, account.IsValidAddress(addr, "osmo"))
	assert.True(t, account.IsValidAddress(addr, ""))
	assert.False(t, account.IsValidAddress(addr, "cosmos"))
	assert.False(t, account.IsValidAddress(corrupt(addr), "osmo"))
	assert.False(t, account.IsValidAddress("", "osmo"))
	assert.False(t, account.IsValidAddress("osmo1", "osmo"))
	assert.False(t, account.IsValidAddress(accountHex, ""))
}

func TestConvertAddress(t *testing.T) {
	addr := osmoAddress(t)

	cosmos, err := account.ConvertAddress(addr, "cosmos")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(cosmos, "cosmos1"))
	cosmosHex, err := account.ConvertToHex(cosmos)
	assert.NoError(t, err)
	assert.Equal(t, cosmosHex, accountHex)

	back, err := account.ConvertAddress(cosmos, "osmo")
	assert.NoError(t, err)
	assert.Equal(t, back, addr)

	_, err = account.ConvertAddress("not-an-address", "osmo")
	assert.True(t, errors.Is(err, account.ErrInvalidAddress))
}

func TestNormalizeAddress(t *testing.T) {
	addr := osmoAddress(t)
	cosmos, err := account.ConvertAddress(addr, "cosmos")
	assert.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"already on chain", addr},
		{"other chain prefix", cosmos},
		{"hex account bytes", accountHex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := account.NormalizeAddress(tt.input, "osmo")
			assert.NoError(t, err)
			assert.Equal(t, got, addr)
		})
	}

	for _, bad := range []string{"", "osmo1", corrupt(addr), "0x0102"} {
		_, err := account.NormalizeAddress(bad, "osmo")
		assert.True(t, errors.Is(err, account.ErrInvalidAddress))
	}
}

func TestConvertToHex(t *testing.T) {
	hexAddr, err := account.ConvertToHex(osmoAddress(t))
	assert.NoError(t, err)
	assert.Equal(t, hexAddr, accountHex)

	_, err = account.ConvertToHex("")
	assert.True(t, errors.Is(err, account.ErrInvalidAddress))
}

func TestConvertFromHex_InvalidLength(t *testing.T) {
	_, err := account.ConvertFromHex("0x0102", "osmo")
	assert.True(t, errors.Is(err, account.ErrInvalidAddress))

	_, err = account.ConvertFromHex("0xzz", "osmo")
	assert.True(t, errors.Is(err, account.ErrInvalidAddress))
}

func TestIsEthAddress(t *testing.T) {
	assert.True(t, account.IsEthAddress(accountHex))
	assert.False(t, account.IsEthAddress("0x0102"))
	assert.False(t, account.IsEthAddress("osmo1qqqq"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, account.Shorten("osmo1abcdefghijklmnop", 5), "osmo1...lmnop")
	assert.Equal(t, account.Shorten("osmo1abc", 5), "osmo1abc")
	assert.Equal(t, account.Shorten("osmo1abcdefghijklmnop", 0), "osmo1abcdefghijklmnop")
}
