package crypto

import (
	"crypto/sha1"
	"math/big"
)

// ServerIDHash computes the session-service digest: sha1(serverID || secret
// || publicKeyDER) rendered as signed two's-complement hex, the non-standard
// form the session service expects.
func ServerIDHash(serverID string, secret, publicDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicDER)
	sum := h.Sum(nil)

	digest := new(big.Int).SetBytes(sum)
	if digest.Bit(159) == 1 {
		max := new(big.Int).Lsh(big.NewInt(1), 160)
		digest.Sub(digest, max)
	}
	return digest.Text(16)
}
