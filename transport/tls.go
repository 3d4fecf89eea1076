package transport

import (
	"crypto/tls"
	"crypto/x509"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
)

const (
	certFileName = "cert.pem"
	keyFileName  = "key.pem"
)

// NewTLSConfig builds the TLS settings shared by HTTP and websocket
// connections. CertPath is either a PEM certificate or a directory holding
// cert.pem and, optionally, key.pem. When the key is present the pair is
// also offered as client certificate.
func NewTLSConfig(certPath string, verify bool) (*tls.Config, error) {
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if !verify {
		conf.InsecureSkipVerify = true
		return conf, nil
	}
	if certPath == "" {
		return nil, &core.ConfigurationError{Field: "CertPath", Err: errors.New("certificate verification requires a certificate path")}
	}
	certFile, keyFile, err := resolveCertPaths(certPath)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "CertPath", Err: err}
	}
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, &core.ConfigurationError{Field: "CertPath", Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &core.ConfigurationError{Field: "CertPath", Err: errors.Errorf("no PEM certificate found in %s", certFile)}
	}
	conf.RootCAs = pool
	if keyFile != "" {
		pair, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, &core.ConfigurationError{Field: "CertPath", Err: errors.Wrap(err, "load client certificate")}
		}
		conf.Certificates = []tls.Certificate{pair}
	}
	return conf, nil
}

func resolveCertPaths(certPath string) (certFile, keyFile string, err error) {
	info, err := os.Stat(certPath)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir() {
		return certPath, "", nil
	}
	certFile = filepath.Join(certPath, certFileName)
	if _, err := os.Stat(certFile); err != nil {
		return "", "", err
	}
	if _, err := os.Stat(filepath.Join(certPath, keyFileName)); err == nil {
		keyFile = filepath.Join(certPath, keyFileName)
	}
	return certFile, keyFile, nil
}
