package wxcrypt

import (
	"errors"
	"strings"
	"testing"
)

// 43-character console form of base64("a" * 32) without the trailing pad.
const testAESKey = "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWE"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-token", testAESKey, "wx1234567890")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestNewCodecRejectsBadKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		key  string
	}{
		{"too short", "YWJj"},
		{"not base64", strings.Repeat("!", 43)},
		{"wrong decoded length", "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYQ"},
	}
	for _, tc := range cases {
		if _, err := NewCodec("tok", tc.key, "recv"); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	cases := []string{
		"<xml><Content><![CDATA[hello]]></Content></xml>",
		"short",
		strings.Repeat("中文消息内容", 200),
		"",
	}
	for _, plaintext := range cases {
		ct, err := c.Encrypt([]byte(plaintext))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(got) != plaintext {
			t.Fatalf("roundtrip got %q, want %q", got, plaintext)
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	ct, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := c.Decrypt("not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	if _, err := c.Decrypt(ct[:8]); err == nil {
		t.Fatalf("expected error for truncated ciphertext")
	}
}

func TestDecryptRejectsWrongReceiver(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	other, err := NewCodec("test-token", testAESKey, "wx_other_corp")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	ct, err := other.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := c.Decrypt(ct); !errors.Is(err, ErrReceiverMismatch) {
		t.Fatalf("expected receiver mismatch, got %v", err)
	}
}

func TestSignatureOrderIndependence(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	sig := c.Signature("1700000000", "nonce1", "cipher")
	if len(sig) != 40 {
		t.Fatalf("signature length %d, want 40 hex chars", len(sig))
	}
	if sig != c.Signature("1700000000", "nonce1", "cipher") {
		t.Fatalf("signature not deterministic")
	}
}

func TestDecryptVerifiedSignatureFlip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	ct, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	timestamp, nonce := "1700000000", "abc123"
	sig := c.Signature(timestamp, nonce, ct)

	if _, err := c.DecryptVerified(sig, timestamp, nonce, ct); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	badSig := "0" + sig[1:]
	if sig[0] == '0' {
		badSig = "1" + sig[1:]
	}
	flips := []struct {
		name                      string
		sig, timestamp, nonce, ct string
	}{
		{"signature", badSig, timestamp, nonce, ct},
		{"timestamp", sig, "1700000001", nonce, ct},
		{"nonce", sig, timestamp, "abc124", ct},
		{"ciphertext", sig, timestamp, nonce, ct + "AA=="},
	}
	for _, f := range flips {
		if _, err := c.DecryptVerified(f.sig, f.timestamp, f.nonce, f.ct); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("flipped %s: expected signature mismatch, got %v", f.name, err)
		}
	}
}

func TestPlainSignature(t *testing.T) {
	t.Parallel()

	sig := PlainSignature("token", "1700000000", "nonce")
	if len(sig) != 40 {
		t.Fatalf("signature length %d, want 40 hex chars", len(sig))
	}
	if sig == PlainSignature("token", "1700000000", "other") {
		t.Fatalf("different nonce must change the signature")
	}
}
