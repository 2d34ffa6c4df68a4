// Package imageproxy relays remote images through the server so
// clients never connect directly to third-party hosts, and signs/
// verifies the URLs it proxies with a dedicated HMAC secret.
package imageproxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Sign returns the hex-encoded HMAC-SHA256 of url under secret.
func Sign(secret, url string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(url))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sigHex is a valid signature for url under
// secret, using a constant-time comparison.
func Verify(secret, url, sigHex string) bool {
	expected, err := hex.DecodeString(Sign(secret, url))
	if err != nil {
		return false
	}
	actual, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, actual)
}

// ProxyPath builds the /api/proxy/image path for imageURL, ready to
// embed in place of a third-party image link.
func ProxyPath(secret, imageURL string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(imageURL))
	return "/api/proxy/image?url=" + encoded + "&sig=" + Sign(secret, imageURL)
}

// DecodeURL reverses the base64url encoding ProxyPath applies.
func DecodeURL(encoded string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
