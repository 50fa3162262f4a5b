package ai

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// isConnectionRefused reports whether err is a dial failure against a local
// server that is not running.
func isConnectionRefused(err error) bool {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return strings.Contains(strings.ToLower(err.Error()), "connection refused")
	}

	msg := strings.ToLower(urlErr.Err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "actively refused") ||
		strings.Contains(msg, "cannot assign requested address")
}

// authTransport adds a bearer token to every request.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(req)
}

// httpClient returns a client without its own timeout; the caller's
// context bounds every request.
func httpClient(apiKey string) *http.Client {
	if apiKey == "" {
		return &http.Client{}
	}
	return &http.Client{Transport: &authTransport{base: http.DefaultTransport, apiKey: apiKey}}
}

// joinText concatenates non-empty fragments.
func joinText(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.String()
}
