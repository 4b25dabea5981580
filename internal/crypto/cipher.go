package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
)

// EncryptMessage encrypts plaintext with a conversation's key and IV using
// AES-192-CTR and returns the ciphertext hex-encoded.
func EncryptMessage(key, iv []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryption
	}
	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))
	return hex.EncodeToString(out), nil
}

// DecryptMessage reverses EncryptMessage. CTR mode carries no integrity tag:
// a mismatched key or IV yields garbage bytes, not an error. Only structural
// problems (bad hex, bad key size) fail.
func DecryptMessage(key, iv []byte, ciphertextHex string) (string, error) {
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", ErrDecryption
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryption
	}
	out := make([]byte, len(raw))
	cipher.NewCTR(block, iv).XORKeyStream(out, raw)
	return string(out), nil
}
