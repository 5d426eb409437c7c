// Package hexutil provides canonical handling of Ethereum hex-encoded values.
//
// JSON-RPC endpoints legitimately differ in hex casing and zero padding;
// everything here reduces those renderings to a single comparable form.
package hexutil

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseInt64 parses a hex-encoded string to int64.
// Handles both "0x" prefixed and non-prefixed hex strings.
func ParseInt64(hexNum string) (int64, error) {
	hexNum = strings.TrimPrefix(hexNum, "0x")
	return strconv.ParseInt(hexNum, 16, 64)
}

// EncodeQuantity renders a block number or similar quantity in the
// conventional 0x-prefixed, unpadded form used in JSON-RPC params.
func EncodeQuantity(n int64) string {
	return fmt.Sprintf("0x%x", n)
}

// ParseQuantity parses a 0x-prefixed hex quantity into a big integer.
// Unlike the strict QUANTITY encoding, it tolerates upper-case digits and
// leading zeros, since canonicalization must not treat those as divergence.
func ParseQuantity(s string) (*big.Int, error) {
	hexDigits, ok := strings.CutPrefix(s, "0x")
	if !ok {
		hexDigits, ok = strings.CutPrefix(s, "0X")
	}
	if !ok || hexDigits == "" {
		return nil, fmt.Errorf("not a hex quantity: %q", s)
	}
	n, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity: %q", s)
	}
	return n, nil
}

// IsQuantity reports whether s parses as a hex quantity.
func IsQuantity(s string) bool {
	_, err := ParseQuantity(s)
	return err == nil
}

// CanonicalAddress lower-cases an address, validating it first. Checksummed
// and lower-case renderings of the same address become identical.
func CanonicalAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address: %q", s)
	}
	return strings.ToLower(s), nil
}

// IsAddress reports whether s is a 20-byte hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}
