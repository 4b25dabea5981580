package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	// ConversationKeySize is the AES-192 key length used for message encryption.
	ConversationKeySize = 24
	// ConversationIVSize is the CTR-mode IV length shared by a conversation.
	ConversationIVSize = 16

	rsaKeyBits = 2048
)

// ErrDecryption is returned for every unwrap or decrypt failure. Malformed
// keys, corrupt ciphertexts and wrong keys are deliberately indistinguishable
// so callers cannot be used as a decryption oracle.
var ErrDecryption = errors.New("decryption failed")

// GenerateConversationKey returns a fresh symmetric key and IV for a
// conversation, from a cryptographically secure source.
func GenerateConversationKey() (key, iv []byte, err error) {
	key = make([]byte, ConversationKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	iv = make([]byte, ConversationIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	return key, iv, nil
}

// GenerateKeyPair creates an RSA-2048 keypair, PEM-encoded: the public key
// as SPKI, the private key as PKCS#8.
func GenerateKeyPair() (publicPEM, privatePEM string, err error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("encode public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("encode private key: %w", err)
	}

	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	return publicPEM, privatePEM, nil
}

// WrapKey encrypts a conversation key under a participant's public key and
// returns it base64-encoded. RSA-OAEP with SHA-1, matching what clients of
// the original wire format expect.
func WrapKey(publicPEM string, key []byte) (string, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return "", err
	}
	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey recovers a conversation key from its wrapped base64 form. Any
// failure, including a malformed private key, yields ErrDecryption.
func UnwrapKey(privatePEM, wrappedB64 string) ([]byte, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, ErrDecryption
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, ErrDecryption
	}
	key, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return key, nil
}

// EncryptPrivateKey seals a PEM private key under a password with AES-256-GCM.
// Used at registration and whenever the password changes.
func EncryptPrivateKey(privatePEM, password string) (string, error) {
	block, err := aes.NewCipher(passwordKey(password))
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(privatePEM), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPrivateKey recovers a PEM private key sealed by EncryptPrivateKey.
// A wrong password or corrupt blob yields ErrDecryption.
func DecryptPrivateKey(encrypted, password string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryption
	}
	block, err := aes.NewCipher(passwordKey(password))
	if err != nil {
		return "", ErrDecryption
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryption
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrDecryption
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}

func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

func parsePublicKey(publicPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return nil, errors.New("invalid public key pem")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}
	return pub, nil
}

func parsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, errors.New("invalid private key pem")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return priv, nil
}
