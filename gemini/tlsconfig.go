package gemini

import (
	"crypto/rand"
	"crypto/tls"
)

// TLSConfig builds a tls.Config for a single fixed certificate, used by
// tests and by single-host deployments.
func TLSConfig(sni string, cert tls.Certificate) *tls.Config {
	return &tls.Config{
		ServerName:               sni,
		Certificates:             []tls.Certificate{cert},
		Rand:                     rand.Reader,
		MinVersion:               tls.VersionTLS12,
		CurvePreferences:         []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
		PreferServerCipherSuites: true,
		CipherSuites: []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
		},
	}
}

// SNIConfig builds a tls.Config that resolves the certificate per
// connection via getCertificate, so a single listener can carry a
// distinct certificate per virtual host the way spec.md §4.4 requires
// ("selects the certificate bound to the requested server name").
func SNIConfig(getCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error)) *tls.Config {
	return &tls.Config{
		GetCertificate:           getCertificate,
		Rand:                     rand.Reader,
		MinVersion:               tls.VersionTLS12,
		CurvePreferences:         []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
		PreferServerCipherSuites: true,
		CipherSuites: []uint16{
			tls.TLS_AES_128_GCM_SHA256,
			tls.TLS_CHACHA20_POLY1305_SHA256,
			tls.TLS_AES_256_GCM_SHA384,
		},
	}
}
