package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// ServerConfig describes TLS for the daemon API listener.
type ServerConfig struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	CertFile     string   `json:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `json:"key_file" mapstructure:"key_file"`
	Dir          string   `json:"dir" mapstructure:"dir"` // directory holding tls.crt/tls.key
	AutoGenerate bool     `json:"auto_generate" mapstructure:"auto_generate"`
	CommonName   string   `json:"common_name" mapstructure:"common_name"`
	DNSNames     []string `json:"dns_names" mapstructure:"dns_names"`
	ValidDays    int      `json:"valid_days" mapstructure:"valid_days"`
}

// ClientConfig describes TLS for outbound HTTPS, used by HTTP probes
// against TLS health endpoints and by the API client.
type ClientConfig struct {
	CACert     string `json:"ca_cert" mapstructure:"ca_cert"`
	ServerName string `json:"server_name" mapstructure:"server_name"`
	SkipVerify bool   `json:"skip_verify" mapstructure:"skip_verify"`
}

// ServerTLS builds a *tls.Config for the listener. It returns (nil, nil)
// when TLS is disabled. With AutoGenerate set and no certificates on
// disk, a self-signed pair is generated into Dir.
func ServerTLS(c ServerConfig) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" || keyPath == "" {
		if c.Dir == "" {
			return nil, errors.New("tls enabled but no cert_file/key_file or dir configured")
		}
		certPath = filepath.Join(c.Dir, tlsCrt)
		keyPath = filepath.Join(c.Dir, tlsKey)
		if c.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generate(c, certPath, keyPath); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLS builds a *tls.Config for outbound connections. A nil return
// with nil error means default verification applies.
func ClientTLS(c ClientConfig) (*tls.Config, error) {
	if c.CACert == "" && c.ServerName == "" && !c.SkipVerify {
		return nil, nil
	}
	// #nosec G402 skip-verify is an explicit operator choice for self-signed dev endpoints
	cfg := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.CACert != "" {
		pem, err := os.ReadFile(filepath.Clean(c.CACert))
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in " + c.CACert)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generate(c ServerConfig, certPath, keyPath string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	cn := c.CommonName
	if cn == "" {
		cn = "localhost"
	}
	dns := c.DNSNames
	if len(dns) == 0 {
		dns = []string{"localhost"}
	}
	days := c.ValidDays
	if days <= 0 {
		days = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   cn,
		Organization: "readyup",
		DNSNames:     dns,
		IPAddresses:  []string{"127.0.0.1"},
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     certPath,
		KeyPath:      keyPath,
		CACertPath:   filepath.Join(c.Dir, tlsCaCrt),
	})
}
