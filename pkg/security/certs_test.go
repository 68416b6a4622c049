package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// genCA creates a self-signed CA certificate and key, returning both the
// parsed x509.Certificate and the PEM-encoded cert/key pair.
func genCA(t *testing.T) (*x509.Certificate, []byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return cert, certPEM, keyPEM
}

// genLeaf issues a leaf certificate signed by ca/caKeyPEM, valid for both
// client and server auth, usable as localhost.
func genLeaf(t *testing.T, ca *x509.Certificate, caKeyPEM []byte) ([]byte, []byte) {
	t.Helper()
	block, _ := pem.Decode(caKeyPEM)
	caKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadServerAndClientTLSConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ca, caPEM, caKeyPEM := genCA(t)
	leafCertPEM, leafKeyPEM := genLeaf(t, ca, caKeyPEM)

	caPath := writeFile(t, dir, "ca.crt", caPEM)
	certPath := writeFile(t, dir, "node.crt", leafCertPEM)
	keyPath := writeFile(t, dir, "node.key", leafKeyPEM)

	serverCfg, err := LoadServerTLSConfig(certPath, keyPath, caPath)
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, serverCfg.ClientAuth)
	require.Len(t, serverCfg.Certificates, 1)

	clientCfg, err := LoadClientTLSConfig(certPath, keyPath, caPath)
	require.NoError(t, err)
	require.NotNil(t, clientCfg.RootCAs)
	require.Len(t, clientCfg.Certificates, 1)
}

func TestLoadServerTLSConfigRejectsMissingCA(t *testing.T) {
	dir := t.TempDir()
	ca, caPEM, caKeyPEM := genCA(t)
	leafCertPEM, leafKeyPEM := genLeaf(t, ca, caKeyPEM)
	_ = caPEM

	certPath := writeFile(t, dir, "node.crt", leafCertPEM)
	keyPath := writeFile(t, dir, "node.key", leafKeyPEM)

	_, err := LoadServerTLSConfig(certPath, keyPath, filepath.Join(dir, "missing.crt"))
	require.Error(t, err)
}

func TestCertNeedsRotation(t *testing.T) {
	require.True(t, CertNeedsRotation(nil))

	ca, _, _ := genCA(t)
	require.True(t, CertNeedsRotation(ca), "test CA expires in 24h, inside the 30-day threshold")
}

func TestValidateCertChain(t *testing.T) {
	ca, _, caKeyPEM := genCA(t)
	leafCertPEM, _ := genLeaf(t, ca, caKeyPEM)

	block, _ := pem.Decode(leafCertPEM)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	require.NoError(t, ValidateCertChain(leaf, ca))

	otherCA, _, _ := genCA(t)
	require.Error(t, ValidateCertChain(leaf, otherCA))
}
