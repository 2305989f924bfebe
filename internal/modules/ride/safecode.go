package ride

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"
)

const (
	safeCodeMin   = 1000
	safeCodeRange = 9000 // [1000, 9999]
)

// newSafeCode returns a uniformly random 4-digit code.
func newSafeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(safeCodeRange))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+safeCodeMin, 10), nil
}

func safeCodesMatch(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
