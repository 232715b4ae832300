package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeKeyPair writes a fresh self-signed certificate and key and returns
// the certificate serial.
func writeKeyPair(t *testing.T, certFile, keyFile string) *big.Int {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "ledgersnap-test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if keyFile != "" {
		if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return serial
}

func TestAddCertPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ca.pem")
	writeKeyPair(t, path, "")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"one cert", data, false},
		{"two certs", append(append([]byte{}, data...), data...), false},
		{"empty", nil, true},
		{"not pem", []byte("not a certificate"), true},
		{"bad cert", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("AddCertPEM() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddCertFile_NotFound(t *testing.T) {
	if err := NewPool().AddCertFile("/nonexistent/ca.pem"); err == nil {
		t.Error("AddCertFile() expected error for missing file")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{CertFile: "c.pem"}).Validate(); !errors.Is(err, ErrKeyPairIncomplete) {
		t.Errorf("Validate() = %v, want ErrKeyPairIncomplete", err)
	}
	if err := (Config{CertFile: "c.pem", KeyFile: "k.pem"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestClientConfig_Disabled(t *testing.T) {
	tc, w, err := ClientConfig(Config{})
	if err != nil || tc != nil || w != nil {
		t.Errorf("ClientConfig(zero) = %v, %v, %v; want all nil", tc, w, err)
	}
}

func TestClientConfig_Insecure(t *testing.T) {
	tc, w, err := ClientConfig(Config{Insecure: true})
	if err != nil {
		t.Fatal(err)
	}
	if !tc.InsecureSkipVerify || w != nil {
		t.Errorf("InsecureSkipVerify = %v, watcher = %v", tc.InsecureSkipVerify, w)
	}
}

func TestClientConfig_CAAndClientCert(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	certFile := filepath.Join(dir, "client.pem")
	keyFile := filepath.Join(dir, "client.key")
	writeKeyPair(t, ca, "")
	writeKeyPair(t, certFile, keyFile)

	tc, w, err := ClientConfig(Config{CAFile: ca, CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	defer w.Stop()

	if tc.RootCAs == nil {
		t.Error("RootCAs not set")
	}
	if tc.MinVersion < 0x0303 {
		t.Errorf("MinVersion = %x, want TLS 1.2 or later", tc.MinVersion)
	}
	cert, err := tc.GetClientCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetClientCertificate() = %v, %v", cert, err)
	}
}

func TestClientConfig_BadCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("nope"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ClientConfig(Config{CAFile: path}); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("ClientConfig() error = %v, want ErrNoCertsFound", err)
	}
}
