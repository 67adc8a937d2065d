package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSelfSignedCert_Defaults(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cert == nil {
		t.Fatal("certificate is nil")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "localhost" {
		t.Errorf("DNS SANs: got %v, want [localhost]", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v, want [127.0.0.1]", leaf.IPAddresses)
	}

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatal("public key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		t.Errorf("curve: got %v, want P-256", ecKey.Curve.Params().Name)
	}

	if leaf.Issuer.CommonName != leaf.Subject.CommonName {
		t.Errorf("issuer CN %q does not match subject CN %q", leaf.Issuer.CommonName, leaf.Subject.CommonName)
	}
}

func TestGenerateSelfSignedCert_CustomHosts(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert("relay.internal", "10.0.0.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	if leaf.Subject.CommonName != "relay.internal" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "relay.internal")
	}
	if err := leaf.VerifyHostname("relay.internal"); err != nil {
		t.Errorf("VerifyHostname(relay.internal): %v", err)
	}
	if err := leaf.VerifyHostname("10.0.0.7"); err != nil {
		t.Errorf("VerifyHostname(10.0.0.7): %v", err)
	}
}

func TestCertPool_VerifiesGeneratedCert(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, err := CertPool(cert)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaf, _ := x509.ParseCertificate(cert.Certificate[0])
	if _, err := leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"}); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestCertPool_Empty(t *testing.T) {
	t.Parallel()

	if _, err := CertPool(&standardtls.Certificate{}); err == nil {
		t.Error("expected error for empty certificate, got nil")
	}
}

func TestClientConfig_SystemRoots(t *testing.T) {
	t.Parallel()

	cfg, err := ClientConfig("smtp.example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerName != "smtp.example.com" {
		t.Errorf("ServerName: got %q, want %q", cfg.ServerName, "smtp.example.com")
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2 (%d)", cfg.MinVersion, standardtls.VersionTLS12)
	}
	if cfg.RootCAs != nil {
		t.Error("RootCAs should be nil to use system roots")
	}
}

func TestClientConfig_CAFile(t *testing.T) {
	t.Parallel()

	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	if err := os.WriteFile(caPath, pemData, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	cfg, err := ClientConfig("localhost", caPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("RootCAs is nil")
	}
}

func TestClientConfig_CAFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := ClientConfig("localhost", "/nonexistent/ca.pem"); err == nil {
		t.Error("expected error for nonexistent CA file, got nil")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := ClientConfig("localhost", garbage); err == nil {
		t.Error("expected error for CA file without certificates, got nil")
	}
}
