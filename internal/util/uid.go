package util

import (
	"hash/fnv"
	"math/big"
)

// GenerateDeterministicUID derives a DICOM UID under the 2.25 (UUID-derived)
// root from seed. The same seed always yields the same UID.
func GenerateDeterministicUID(seed string) string {
	h := fnv.New128a()
	_, _ = h.Write([]byte(seed)) // hash.Write never returns an error
	n := new(big.Int).SetBytes(h.Sum(nil))
	return "2.25." + n.String()
}
