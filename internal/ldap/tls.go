package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// BuildTLSConfig completes config.TLSConfig from the CA and client
// certificate settings. It returns a copy and leaves config untouched.
func BuildTLSConfig(config *ConnectionConfig) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.TLSCACertFile != "" || config.TLSCACert != "" {
		pem := []byte(config.TLSCACert)
		if config.TLSCACertFile != "" {
			data, err := os.ReadFile(config.TLSCACertFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
			}
			pem = data
		}

		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no valid PEM certificates found in CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if config.TLSClientCertFile != "" || config.TLSClientKeyFile != "" {
		if config.TLSClientCertFile == "" || config.TLSClientKeyFile == "" {
			return nil, fmt.Errorf("client certificate and key must be configured together")
		}
		cert, err := tls.LoadX509KeyPair(config.TLSClientCertFile, config.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// tlsConfigFor returns base with ServerName set for host when unset.
func tlsConfigFor(base *tls.Config, host string) *tls.Config {
	if base.ServerName != "" || base.InsecureSkipVerify {
		return base
	}
	cfg := base.Clone()
	cfg.ServerName = host
	return cfg
}
