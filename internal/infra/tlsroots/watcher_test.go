package tlsroots

import (
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_Invalid(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("NewWatcher() expected error for missing files")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "c.pem"), filepath.Join(dir, "c.key")
	writeKeyPair(t, certFile, keyFile)

	w, err := NewWatcher(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	w.Stop()
	w.Stop()
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "c.pem"), filepath.Join(dir, "c.key")
	writeKeyPair(t, certFile, keyFile)

	w, err := NewWatcher(certFile, keyFile, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	serial := writeKeyPair(t, certFile, keyFile)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		leaf, err := x509.ParseCertificate(w.Certificate().Certificate[0])
		if err == nil && leaf.SerialNumber.Cmp(serial) == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("certificate was not reloaded")
}
