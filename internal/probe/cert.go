package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

type CertResult struct {
	Host   string
	Expiry time.Time
	Err    error
}

func (r CertResult) OK() bool { return r.Err == nil }

type CertInspector struct {
	Timeout time.Duration
	Port    int
	RootCAs *x509.CertPool
}

func NewCertInspector(timeout time.Duration) *CertInspector {
	return &CertInspector{Timeout: timeout, Port: 443}
}

// Hostname extracts the host of rawURL without port.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return u.Hostname(), nil
}

// Inspect completes a verified TLS handshake with host and returns the leaf
// certificate's NotAfter.
func (c *CertInspector) Inspect(ctx context.Context, host string) CertResult {
	res := CertResult{Host: host}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.Timeout},
		Config:    &tls.Config{ServerName: host, RootCAs: c.RootCAs},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(c.Port)))
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrCertificate, err)
		return res
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		res.Err = fmt.Errorf("%w: no peer certificate", ErrCertificate)
		return res
	}
	res.Expiry = certs[0].NotAfter
	return res
}

// DaysLeft is the number of whole days until expiry, rounded down.
func DaysLeft(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
