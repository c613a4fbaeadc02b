package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"

	"hookbridge/internal/constants"
)

const (
	MinSecretLength = 32
	keySize         = 32
	ivSize          = aes.BlockSize
	macSize         = sha256.Size
)

var (
	hkdfInfoEncryption = []byte("hookbridge/token/aes-256-cbc")
	hkdfInfoMAC        = []byte("hookbridge/token/hmac-sha256")
)

var ErrSecretTooShort = fmt.Errorf("encryption secret must be at least %d bytes", MinSecretLength)

// DecryptionError reports that a blob could not be turned back into
// plaintext: wrong key, truncation, corruption or bad encoding.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

func IsDecryptionError(err error) bool {
	var d *DecryptionError
	return errors.As(err, &d)
}

// TokenCipher encrypts credential secrets at rest with AES-256-CBC and
// PKCS#7 padding under a fresh random IV per call.
//
// In hkdf mode (the default) separate encryption and MAC keys are derived
// from the secret and the blob is base64(IV || CT || HMAC-SHA256(IV || CT)).
// In raw mode the first 32 secret bytes are the AES key and the blob is
// base64(IV || CT); a wrong key is then only detected through padding or
// UTF-8 checks and can, rarely, go unnoticed.
type TokenCipher struct {
	block  cipher.Block
	macKey []byte
	rand   io.Reader
}

func NewTokenCipher(secret, mode string) (*TokenCipher, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	var encKey, macKey []byte
	switch mode {
	case constants.KeyDerivationHKDF, "":
		var err error
		encKey, err = deriveKey(secret, hkdfInfoEncryption)
		if err != nil {
			return nil, err
		}
		macKey, err = deriveKey(secret, hkdfInfoMAC)
		if err != nil {
			return nil, err
		}
	case constants.KeyDerivationRaw:
		encKey = []byte(secret[:keySize])
	default:
		return nil, fmt.Errorf("unknown key derivation %q", mode)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &TokenCipher{block: block, macKey: macKey, rand: rand.Reader}, nil
}

func deriveKey(secret string, info []byte) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, info), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func (c *TokenCipher) authenticated() bool {
	return c.macKey != nil
}

func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, ivSize+len(padded), ivSize+len(padded)+macSize)
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[ivSize:], padded)

	if c.authenticated() {
		out = append(out, c.mac(out)...)
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *TokenCipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid base64", Err: err}
	}

	if c.authenticated() {
		if len(raw) < ivSize+aes.BlockSize+macSize {
			return "", &DecryptionError{Reason: "ciphertext too short"}
		}
		body, tag := raw[:len(raw)-macSize], raw[len(raw)-macSize:]
		if !hmac.Equal(tag, c.mac(body)) {
			return "", &DecryptionError{Reason: "authentication tag mismatch"}
		}
		raw = body
	}

	if len(raw) < ivSize+aes.BlockSize || (len(raw)-ivSize)%aes.BlockSize != 0 {
		return "", &DecryptionError{Reason: "ciphertext has invalid length"}
	}

	iv, ct := raw[:ivSize], raw[ivSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid padding", Err: err}
	}
	// Without a MAC, UTF-8 validity is the last wrong-key signal.
	if !c.authenticated() && !utf8.Valid(plain) {
		return "", &DecryptionError{Reason: "plaintext is not valid UTF-8"}
	}

	return string(plain), nil
}

func (c *TokenCipher) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.macKey)
	h.Write(data)
	return h.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("data is not block aligned")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("pad length out of range")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("inconsistent pad bytes")
		}
	}
	return data[:len(data)-n], nil
}
