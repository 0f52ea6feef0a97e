package ntske

import (
	"crypto/cipher"
	"fmt"

	"github.com/miscreant/miscreant.go"
	"github.com/secure-io/siv-go"
)

// AEAD algorithm identifiers from the IANA "AEAD Algorithms" registry
const (
	AES_SIV_CMAC_256 uint16 = 0x0f
	AES_SIV_CMAC_384 uint16 = 0x10
	AES_SIV_CMAC_512 uint16 = 0x11
	AES_128_GCM_SIV  uint16 = 0x1e
)

type algorithm struct {
	name   string
	keyLen int
	new    func(key []byte) (cipher.AEAD, error)
}

var algorithms = map[uint16]algorithm{
	AES_SIV_CMAC_256: {"AES-SIV-CMAC-256", 32, siv.NewCMAC},
	AES_SIV_CMAC_384: {"AES-SIV-CMAC-384", 48, siv.NewCMAC},
	AES_SIV_CMAC_512: {"AES-SIV-CMAC-512", 64, func(key []byte) (cipher.AEAD, error) {
		return miscreant.NewAEAD("AES-CMAC-SIV", key, 16)
	}},
	AES_128_GCM_SIV: {"AES-128-GCM-SIV", 16, siv.NewGCM},
}

// DefaultAlgorithms is the AEAD preference list offered when none is configured.
var DefaultAlgorithms = []uint16{AES_SIV_CMAC_256, AES_128_GCM_SIV}

func SupportedAlgorithm(id uint16) bool {
	_, ok := algorithms[id]
	return ok
}

func AlgorithmName(id uint16) string {
	a, ok := algorithms[id]
	if !ok {
		return fmt.Sprintf("unknown(%d)", id)
	}
	return a.name
}

func KeyLen(id uint16) int {
	a, ok := algorithms[id]
	if !ok {
		panic("unexpected AEAD algorithm")
	}
	return a.keyLen
}

// NewAEAD returns the cipher for algorithm id keyed with key.
func NewAEAD(id uint16, key []byte) (cipher.AEAD, error) {
	a, ok := algorithms[id]
	if !ok {
		return nil, fmt.Errorf("unsupported AEAD algorithm %d", id)
	}
	if len(key) != a.keyLen {
		return nil, fmt.Errorf("unexpected key length %d for %s", len(key), a.name)
	}
	return a.new(key)
}
