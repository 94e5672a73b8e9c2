package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// HashURL returns the hex SHA-256 of a URL. It is the stable article id and
// the key suffix used in Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves ref (e.g. a relative sitemap <loc>) against base.
func ToAbsoluteURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
