package enclave

import (
	"crypto/hmac"
	"crypto/sha256"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// decryptDigest computes the keccak256 digest a decrypt proof commits to:
// the request id followed by every plaintext as a 32-byte big-endian word.
func decryptDigest(requestID uuid.UUID, plaintexts []*big.Int) []byte {
	buf := make([]byte, 0, 16+32*len(plaintexts))
	buf = append(buf, requestID[:]...)
	for _, v := range plaintexts {
		var word [32]byte
		v.FillBytes(word[:])
		buf = append(buf, word[:]...)
	}
	return ethcrypto.Keccak256(buf)
}

// signDecrypt produces the HMAC-SHA256 proof over the decrypt digest.
func signDecrypt(key []byte, requestID uuid.UUID, plaintexts []*big.Int) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(decryptDigest(requestID, plaintexts))
	return mac.Sum(nil)
}

// verifyDecrypt reports whether proof matches the expected signature.
func verifyDecrypt(key []byte, requestID uuid.UUID, plaintexts []*big.Int, proof []byte) bool {
	return hmac.Equal(proof, signDecrypt(key, requestID, plaintexts))
}
