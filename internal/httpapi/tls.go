package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// CertManager obtains Let's Encrypt certificates for domain and its www.
// alias, caching them under cacheDir.
func CertManager(domain, cacheDir string) *autocert.Manager {
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(cacheDir),
		HostPolicy: hostPolicy(domain),
	}
}

func hostPolicy(domain string) autocert.HostPolicy {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	return func(_ context.Context, host string) error {
		host = strings.ToLower(host)
		if host == domain || host == "www."+domain {
			return nil
		}
		return fmt.Errorf("acme/autocert: host %q not configured", host)
	}
}

// ChallengeHandler answers ACME HTTP-01 challenges and redirects everything
// else to HTTPS.
func ChallengeHandler(m *autocert.Manager) http.Handler {
	return m.HTTPHandler(nil)
}
