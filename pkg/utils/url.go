package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashURL returns the hex SHA256 of a URL string, used as a stable
// Redis key for dedup marks.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves a possibly relative reference against a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// SameOrSubdomain reports whether host equals root or is a subdomain of it.
func SameOrSubdomain(host, root string) bool {
	host = strings.ToLower(host)
	root = strings.ToLower(root)
	return host == root || strings.HasSuffix(host, "."+root)
}
