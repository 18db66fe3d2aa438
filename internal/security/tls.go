package security

import (
	"crypto/tls"
	"crypto/x509"
)

// ServerTLSConfig builds the mTLS server config used by the controller and
// node-agent gRPC listeners, grounded on the teacher's pkg/api/server.go:
// client certificates are requested but not required, and a presented
// client certificate is not verified against the root at handshake time;
// no RPC handler checks the peer certificate either.
func ServerTLSConfig(cert *tls.Certificate, rootDER []byte) (*tls.Config, error) {
	pool := x509.NewCertPool()
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, err
	}
	pool.AddCert(root)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequestClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig builds the mTLS client config node agents use to dial the
// controller.
func ClientTLSConfig(cert *tls.Certificate, rootDER []byte, serverName string) (*tls.Config, error) {
	pool := x509.NewCertPool()
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, err
	}
	pool.AddCert(root)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
