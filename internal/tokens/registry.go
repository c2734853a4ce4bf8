package tokens

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// NativeAddress is the pseudo-address aggregators use for the chain's gas token.
const NativeAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// MaxDisplayDecimals caps the precision amounts are shown and floored to.
const MaxDisplayDecimals = 8

// ErrUnknownToken is returned for addresses missing from the registry.
var ErrUnknownToken = errors.New("unknown token")

// Token describes an ERC20 (or the native token) on the configured chain.
type Token struct {
	Address  string `yaml:"address" json:"address"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int32  `yaml:"decimals" json:"decimals"`
	Native   bool   `yaml:"native" json:"native"`
}

// DisplayDecimals is the precision amounts of this token are floored to.
func (t Token) DisplayDecimals() int32 {
	if t.Decimals < MaxDisplayDecimals {
		return t.Decimals
	}
	return MaxDisplayDecimals
}

// Registry is a read-only lookup of supported tokens keyed by lower-case address.
type Registry struct {
	byAddress map[string]Token
}

// NewRegistry validates and indexes the given tokens.
func NewRegistry(list []Token) (*Registry, error) {
	r := &Registry{byAddress: make(map[string]Token, len(list))}
	for _, t := range list {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %q: invalid address %q", t.Symbol, t.Address)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return nil, fmt.Errorf("token %q: invalid decimals %d", t.Symbol, t.Decimals)
		}
		key := Normalize(t.Address)
		if _, dup := r.byAddress[key]; dup {
			return nil, fmt.Errorf("token %q: duplicate address", t.Symbol)
		}
		if strings.EqualFold(t.Address, NativeAddress) {
			t.Native = true
		}
		r.byAddress[key] = t
	}
	return r, nil
}

// DefaultAmoy returns the Polygon Amoy testnet token set.
func DefaultAmoy() *Registry {
	r, err := NewRegistry([]Token{
		{Address: "0x41e94eb019c0762f9bfcf9fb1e58725bfb0e7582", Symbol: "USDC", Decimals: 6},
		{Address: "0x360ad4f9a9A8EFe9A8DCB5f461c4Cc1047E1Dcf9", Symbol: "WETH", Decimals: 18},
		{Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Symbol: "WMATIC", Decimals: 18},
		{Address: NativeAddress, Symbol: "MATIC", Decimals: 18},
	})
	if err != nil {
		panic(err)
	}
	return r
}

type fileFormat struct {
	Tokens []Token `yaml:"tokens"`
}

// LoadFile reads a YAML token list:
//
//	tokens:
//	  - address: 0x...
//	    symbol: USDC
//	    decimals: 6
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token list: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse token list: %w", err)
	}
	if len(f.Tokens) == 0 {
		return nil, errors.New("token list is empty")
	}
	return NewRegistry(f.Tokens)
}

// Normalize lower-cases and trims an address for use as a key.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Lookup finds a token by address, ignoring case.
func (r *Registry) Lookup(addr string) (Token, error) {
	if !common.IsHexAddress(strings.TrimSpace(addr)) {
		return Token{}, fmt.Errorf("%w: malformed address %q", ErrUnknownToken, addr)
	}
	t, ok := r.byAddress[Normalize(addr)]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, addr)
	}
	return t, nil
}

// All returns every registered token.
func (r *Registry) All() []Token {
	out := make([]Token, 0, len(r.byAddress))
	for _, t := range r.byAddress {
		out = append(out, t)
	}
	return out
}
