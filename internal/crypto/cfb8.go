package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// cfb8 implements the CFB-8 mode the game protocol uses for session
// encryption. Standard library CFB shifts a whole block per step; the
// protocol feeds back one byte at a time, so the mode is implemented here.
type cfb8 struct {
	block   cipher.Block
	shift   []byte
	out     []byte
	encrypt bool
}

func newCFB8(block cipher.Block, iv []byte, encrypt bool) *cfb8 {
	shift := make([]byte, block.BlockSize())
	copy(shift, iv)
	return &cfb8{
		block:   block,
		shift:   shift,
		out:     make([]byte, block.BlockSize()),
		encrypt: encrypt,
	}
}

func (c *cfb8) XORKeyStream(dst, src []byte) {
	for i := range src {
		c.block.Encrypt(c.out, c.shift)
		b := src[i] ^ c.out[0]
		dst[i] = b

		feedback := b
		if !c.encrypt {
			feedback = src[i]
		}
		copy(c.shift, c.shift[1:])
		c.shift[len(c.shift)-1] = feedback
	}
}

// NewCFB8Encrypter returns the encrypting stream for the given block and iv.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

// NewCFB8Decrypter returns the decrypting stream for the given block and iv.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// SessionStreams builds the encrypt/decrypt pair for a session. The protocol
// uses the shared secret as both AES key and iv.
func SessionStreams(secret []byte) (enc, dec cipher.Stream, err error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	return NewCFB8Encrypter(block, secret), NewCFB8Decrypter(block, secret), nil
}
