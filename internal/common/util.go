package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"

// MakeRandHexString returns size random bytes encoded as hex, so the result
// is 2*size characters long.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns n random bytes, or nil if the system RNG fails.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil
	}
	return b
}

// MakeRandAlnumString draws n characters uniformly from [a-z0-9].
func MakeRandAlnumString(n int) (string, error) {
	max := big.NewInt(int64(len(lowerAlnum)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = lowerAlnum[idx.Int64()]
	}
	return string(out), nil
}

// WipeByteArray overwrites b with zeros. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
