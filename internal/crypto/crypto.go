// Package crypto encrypts short text fields at rest with AES-256-CBC.
//
// The stored form is base64(hex(iv) + hex(ciphertext)) with PKCS#7 padding.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	keySize  = 32
	ivHexLen = aes.BlockSize * 2
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes (AES-256) after base64 decoding")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Cipher encrypts and decrypts strings with a fixed key. It is safe for concurrent use.
type Cipher struct {
	block cipher.Block
}

// ParseKey decodes a base64 AES-256 key such as the ENCRYPTION_KEY setting.
func ParseKey(keyBase64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key from base64: %w", err)
	}
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// NewCipher creates a Cipher from a base64 encoded key.
func NewCipher(keyBase64 string) (*Cipher, error) {
	key, err := ParseKey(keyBase64)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt seals plainText under a fresh random IV.
func (c *Cipher) Encrypt(plainText string) (string, error) {
	padded := pad([]byte(plainText))

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(sealed, padded)

	combined := hex.EncodeToString(iv) + hex.EncodeToString(sealed)
	return base64.StdEncoding.EncodeToString([]byte(combined)), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(cipherTextBase64 string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(cipherTextBase64)
	if err != nil {
		return "", fmt.Errorf("%w: not base64: %v", ErrInvalidCiphertext, err)
	}
	if len(combined) < ivHexLen {
		return "", fmt.Errorf("%w: too short to contain an IV", ErrInvalidCiphertext)
	}

	iv, err := hex.DecodeString(string(combined[:ivHexLen]))
	if err != nil {
		return "", fmt.Errorf("%w: IV is not hex: %v", ErrInvalidCiphertext, err)
	}
	sealed, err := hex.DecodeString(string(combined[ivHexLen:]))
	if err != nil {
		return "", fmt.Errorf("%w: body is not hex: %v", ErrInvalidCiphertext, err)
	}
	if len(sealed) == 0 || len(sealed)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: body is not a multiple of the block size", ErrInvalidCiphertext)
	}

	plain := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, sealed)
	plain, err = unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("%w: bad padding", ErrInvalidCiphertext)
	}
	return b[:len(b)-n], nil
}
