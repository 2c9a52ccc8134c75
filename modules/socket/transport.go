package socket

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Transport opens the raw connections the socket wrappers run over.
type Transport interface {
	Dial(ctx context.Context, host string, port int, opts ClientOptions) (net.Conn, error)
	Listen(ctx context.Context, opts ServerOptions) (net.Listener, error)
}

// NetTransport is TCP, optionally wrapped in TLS.
type NetTransport struct{}

var _ Transport = NetTransport{}

func (NetTransport) Dial(ctx context.Context, host string, port int, opts ClientOptions) (net.Conn, error) {
	d := net.Dialer{Timeout: time.Duration(opts.ConnectTimeout) * time.Millisecond}
	if !opts.KeepAlive {
		d.KeepAlive = -1
	}

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	tuneConn(conn, opts.NoDelay, opts.ReceiveBufferSize, opts.SendBufferSize)

	if !opts.SslTls {
		return conn, nil
	}

	cfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: opts.TrustAll, //nolint:gosec
		MinVersion:         tls.VersionTLS12,
	}
	if opts.TrustedCACertPath != "" {
		pool, err := loadCertPool(opts.TrustedCACertPath)
		if err != nil {
			conn.Close()
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if opts.PfxKeyCertPath != "" {
		cert, err := loadPFX(opts.PfxKeyCertPath, opts.PfxKeyCertPassword)
		if err != nil {
			conn.Close()
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}

func (NetTransport) Listen(ctx context.Context, opts ServerOptions) (net.Listener, error) {
	lc := net.ListenConfig{}
	if !opts.KeepAlive {
		lc.KeepAlive = -1
	}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(opts.HostInterface, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, err
	}
	if !opts.SslTls {
		return ln, nil
	}

	cert, err := loadPFX(opts.PfxKeyCertPath, opts.PfxKeyCertPassword)
	if err != nil {
		ln.Close()
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	switch opts.ClientAuth {
	case "request":
		cfg.ClientAuth = tls.RequestClientCert
	case "required":
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if opts.TrustedCACertPath != "" {
		pool, err := loadCertPool(opts.TrustedCACertPath)
		if err != nil {
			ln.Close()
			return nil, err
		}
		cfg.ClientCAs = pool
	}
	return tls.NewListener(ln, cfg), nil
}

func tuneConn(conn net.Conn, noDelay bool, receiveBuffer, sendBuffer int) {
	if tc, ok := conn.(*tls.Conn); ok {
		conn = tc.NetConn()
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.SetNoDelay(noDelay)
	if receiveBuffer > 0 {
		_ = tcp.SetReadBuffer(receiveBuffer)
	}
	if sendBuffer > 0 {
		_ = tcp.SetWriteBuffer(sendBuffer)
	}
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

func loadPFX(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read key and certificate from %s: %w", path, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
