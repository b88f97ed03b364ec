package mirrorlist

import (
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/morikuni/failure/v2"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
}

// Canonicalize normalises a mirror URL: scheme and host are lowercased, the
// scheme's default port and any fragment are dropped, and the path is
// cleaned with trailing slashes removed. Canonicalize(Canonicalize(u)) is
// the same as Canonicalize(u).
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", failure.Translate(err, ErrUnresolvableHost,
			failure.Message("malformed mirror URL"),
			failure.Context{"url": raw})
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	switch {
	case port != "" && port != defaultPorts[u.Scheme]:
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.RawPath = ""
	if u.Path != "" {
		u.Path = strings.TrimRight(path.Clean(u.Path), "/")
	}
	return u.String(), nil
}

// hostname returns the host part of a canonical URL.
func hostname(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
