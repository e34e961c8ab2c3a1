package vault

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("db_password: supersecret\n")
	enc, err := Encrypt(plaintext, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !IsVaultFile(enc) {
		t.Fatal("expected encrypted output to carry the vault header")
	}
	dec, err := Decrypt(enc, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", dec, plaintext)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	enc, err := Encrypt([]byte("secret"), "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(enc, "wrong"); err == nil {
		t.Fatal("expected decrypt to fail with wrong password")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	enc, err := Encrypt([]byte("secret"), "right")
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), enc...)
	tampered[len(tampered)-5] ^= 0xff
	if _, err := Decrypt(tampered, "right"); err == nil {
		t.Fatal("expected decrypt to fail on tampered ciphertext")
	}
}

func TestDecryptMalformedHeader(t *testing.T) {
	if _, err := Decrypt([]byte("not a vault file"), "x"); err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestRekeyChangesPassword(t *testing.T) {
	enc, err := Encrypt([]byte("secret"), "old")
	if err != nil {
		t.Fatal(err)
	}
	rekeyed, err := Rekey(enc, "old", "new")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(rekeyed, "old"); err == nil {
		t.Fatal("expected old password to fail after rekey")
	}
	dec, err := Decrypt(rekeyed, "new")
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != "secret" {
		t.Fatalf("unexpected plaintext after rekey: %q", dec)
	}
}
