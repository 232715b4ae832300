package snapshot

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/yndnr/ledgersnap/internal/core/domain"
)

func TestEncryptionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EncryptionConfig
		wantErr error
	}{
		{"disabled", EncryptionConfig{}, nil},
		{"default algorithm", EncryptionConfig{Passphrase: []byte("correct horse")}, nil},
		{"chacha", EncryptionConfig{Passphrase: []byte("correct horse"), Algorithm: AlgorithmChaCha20}, nil},
		{"short passphrase", EncryptionConfig{Passphrase: []byte("short")}, ErrPassphraseTooWeak},
		{"unknown algorithm", EncryptionConfig{Passphrase: []byte("correct horse"), Algorithm: "rot13"}, ErrUnsupportedAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	for _, algo := range []string{AlgorithmAESGCM, AlgorithmChaCha20} {
		t.Run(algo, func(t *testing.T) {
			cfg := EncryptionConfig{Passphrase: []byte("correct horse"), Algorithm: algo}
			plain := []byte("ledger entries")

			ct, hdr, err := seal(cfg, plain, []byte("shards"))
			if err != nil {
				t.Fatal(err)
			}
			if hdr.Algorithm != algo || hdr.KDF != kdfArgon2id {
				t.Errorf("header = %+v", hdr)
			}
			if bytes.Contains(ct, plain) {
				t.Error("ciphertext contains plaintext")
			}

			got, err := open(cfg.Passphrase, hdr, ct, []byte("shards"))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("open = %q, want %q", got, plain)
			}

			if _, err := open([]byte("wrong horse"), hdr, ct, []byte("shards")); !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("wrong passphrase error = %v", err)
			}
			if _, err := open(cfg.Passphrase, hdr, ct, []byte("shard_trees")); !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("wrong aad error = %v", err)
			}
		})
	}
}

func TestManager_Encrypted(t *testing.T) {
	dir := t.TempDir()
	enc := EncryptionConfig{Passphrase: []byte("correct horse")}
	m := newTestManager(t, Config{Dir: dir, Encryption: enc})

	info, err := m.Create(Meta{Group: domain.GroupShards}, testEntries())
	if err != nil {
		t.Fatal(err)
	}
	if !info.Encrypted {
		t.Error("info.Encrypted = false")
	}

	raw, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, encodeEntries(testEntries())) {
		t.Error("file contains the plaintext data block")
	}

	entries, _, err := m.Load(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3", len(entries))
	}

	plain := newTestManager(t, Config{Dir: dir})
	if _, _, err := plain.Load(info.Path); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Load without passphrase = %v, want ErrPassphraseRequired", err)
	}

	// Metadata stays readable.
	meta, err := plain.Inspect(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	if meta.CID != info.CID || meta.EntryCount != 3 {
		t.Errorf("Inspect = %+v", meta)
	}

	// Same entries, same CID, encrypted or not.
	unencrypted, err := plain.Create(Meta{Group: domain.GroupShards}, testEntries())
	if err != nil {
		t.Fatal(err)
	}
	if unencrypted.CID != info.CID {
		t.Errorf("CID differs between encrypted (%s) and plain (%s)", info.CID, unencrypted.CID)
	}
}
