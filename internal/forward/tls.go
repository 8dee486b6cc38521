package forward

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

// LoadTLSConfig builds a client TLS config that trusts only the CA in caFile.
func LoadTLSConfig(caFile, serverName string) (*tls.Config, error) {
	errFactory := errors.New()

	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errFactory.Wrap(ErrTLSInvalid, err).WithData(caFile)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errFactory.WithData(ErrTLSInvalid, struct {
			Path   string
			Reason string
		}{caFile, "no PEM certificates"})
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
