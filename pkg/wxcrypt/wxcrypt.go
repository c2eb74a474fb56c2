// Package wxcrypt implements the WeChat-family encrypted envelope scheme:
// AES-256-CBC over a framed plaintext, authenticated by a SHA-1 signature
// computed across the shared token, timestamp, nonce and ciphertext.
package wxcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const blockSize = 32

var (
	ErrInvalidSignature = errors.New("wxcrypt: signature mismatch")
	ErrInvalidPadding   = errors.New("wxcrypt: invalid padding")
	ErrReceiverMismatch = errors.New("wxcrypt: receiver id mismatch")
)

// Codec encrypts and decrypts envelopes for one (token, key, receiver)
// triple. Read-only after construction, safe for concurrent use.
type Codec struct {
	token      string
	receiverID string
	key        []byte
}

// NewCodec builds a Codec from the 43-character EncodingAESKey that the
// platform console issues.
func NewCodec(token, encodingAESKey, receiverID string) (*Codec, error) {
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("wxcrypt: decode aes key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("wxcrypt: aes key must decode to 32 bytes, got %d", len(key))
	}
	return &Codec{token: token, receiverID: receiverID, key: key}, nil
}

// Signature computes the keyed digest: sort the token, timestamp, nonce and
// ciphertext lexicographically, concatenate, SHA-1, hex.
func (c *Codec) Signature(timestamp, nonce, ciphertext string) string {
	parts := []string{c.token, timestamp, nonce, ciphertext}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return fmt.Sprintf("%x", sum)
}

// PlainSignature is the unencrypted variant of the scheme: the digest
// covers only the token, timestamp and nonce.
func PlainSignature(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return fmt.Sprintf("%x", sum)
}

// Encrypt frames plaintext as random(16) + len(msg) + msg + receiverID,
// pads, encrypts with AES-CBC and returns the base64 ciphertext.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	buf := make([]byte, 0, 20+len(plaintext)+len(c.receiverID)+blockSize)

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("wxcrypt: random prefix: %w", err)
	}
	buf = append(buf, nonce...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(plaintext)))
	buf = append(buf, plaintext...)
	buf = append(buf, c.receiverID...)
	buf = pkcs7Pad(buf)

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(buf))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(out, buf)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt and checks the embedded receiver id.
func (c *Codec) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wxcrypt: decode ciphertext: %w", err)
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("wxcrypt: ciphertext length not a block multiple")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plain, raw)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return nil, err
	}
	if len(plain) < 20 {
		return nil, errors.New("wxcrypt: plaintext too short")
	}

	msgLen := binary.BigEndian.Uint32(plain[16:20])
	if int(msgLen) > len(plain)-20 {
		return nil, errors.New("wxcrypt: framed length exceeds plaintext")
	}
	msg := plain[20 : 20+msgLen]
	receiver := string(plain[20+msgLen:])
	if subtle.ConstantTimeCompare([]byte(receiver), []byte(c.receiverID)) != 1 {
		return nil, ErrReceiverMismatch
	}
	return msg, nil
}

// DecryptVerified checks the supplied signature before decrypting.
func (c *Codec) DecryptVerified(signature, timestamp, nonce, ciphertext string) ([]byte, error) {
	expected := c.Signature(timestamp, nonce, ciphertext)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return nil, ErrInvalidSignature
	}
	return c.Decrypt(ciphertext)
}

func pkcs7Pad(data []byte) []byte {
	padLen := blockSize - len(data)%blockSize
	if padLen == 0 {
		padLen = blockSize
	}
	pad := make([]byte, padLen)
	for i := range pad {
		pad[i] = byte(padLen)
	}
	return append(data, pad...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-padLen], nil
}
