// Package validator checks whether a string is a well-formed token mint
// address: base58 without the ambiguous 0OIl characters, decoding to exactly
// 32 bytes.
package validator

import "github.com/mr-tron/base58"

const publicKeyLength = 32

// IsValidAddress reports whether the string decodes to a 32-byte public key.
func IsValidAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}

	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}

	return len(decoded) == publicKeyLength
}
