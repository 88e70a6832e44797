package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MACCredentials are Tent app or relationship credentials.
type MACCredentials struct {
	ID        string
	Key       string
	Algorithm string
}

// Supported reports whether the credential algorithm can be signed.
func (c *MACCredentials) Supported() bool {
	switch strings.ToLower(c.Algorithm) {
	case "", "hmac-sha-256", "sha256":
		return true
	}
	return false
}

// SignMAC builds a Hawk Authorization header for req at time t.
func SignMAC(req *Request, t time.Time) (string, error) {
	if req.MAC == nil {
		return "", fmt.Errorf("MAC credentials not provided")
	}
	if !req.MAC.Supported() {
		return "", fmt.Errorf("unsupported MAC algorithm: %s", req.MAC.Algorithm)
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return signMAC(req, strconv.FormatInt(t.Unix(), 10), nonce)
}

func signMAC(req *Request, ts, nonce string) (string, error) {
	parsedURL, err := url.Parse(req.BuildURL())
	if err != nil {
		return "", err
	}

	normalized := NormalizedMACString(req.Method, parsedURL, ts, nonce)
	mac := hmac.New(sha256.New, []byte(req.MAC.Key))
	mac.Write([]byte(normalized))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf(`Hawk id="%s", mac="%s", ts="%s", nonce="%s"`, req.MAC.ID, signature, ts, nonce), nil
}

// NormalizedMACString is the Hawk header request string for u.
func NormalizedMACString(method string, u *url.URL, ts, nonce string) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	resource := u.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if u.RawQuery != "" {
		resource += "?" + u.RawQuery
	}

	return strings.Join([]string{
		"hawk.1.header",
		ts,
		nonce,
		strings.ToUpper(method),
		resource,
		strings.ToLower(u.Hostname()),
		port,
		"",
		"",
	}, "\n") + "\n"
}

// ParseMACHeader splits a Hawk Authorization header into its attributes.
func ParseMACHeader(header string) (map[string]string, bool) {
	if !strings.HasPrefix(header, "Hawk ") {
		return nil, false
	}
	attrs := make(map[string]string)
	for _, part := range strings.Split(strings.TrimPrefix(header, "Hawk "), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		attrs[kv[0]] = strings.Trim(kv[1], `"`)
	}
	return attrs, true
}

// VerifyMAC checks a Hawk header produced for method and u against key.
func VerifyMAC(header, method string, u *url.URL, key string) bool {
	attrs, ok := ParseMACHeader(header)
	if !ok {
		return false
	}
	normalized := NormalizedMACString(method, u, attrs["ts"], attrs["nonce"])
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(normalized))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(attrs["mac"]))
}
