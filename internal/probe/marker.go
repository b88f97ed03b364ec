// Package probe checks candidate mirrors against well-known marker resources
// and runs those checks in a bounded worker pool.
package probe

import (
	"context"
	"strings"
)

// Fetcher retrieves content, returning false when it is unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, bool)
}

// Marker is a resource whose presence confirms a correctly rooted mirror.
// Path is relative to the mirror root; an empty Path probes the root itself.
// When Want is empty any non-empty content is accepted.
type Marker struct {
	Path string
	Want string
}

// Check reports whether the marker is reachable under base.
func Check(ctx context.Context, f Fetcher, base string, m Marker) bool {
	data, ok := f.Fetch(ctx, Join(base, m.Path))
	if !ok || len(data) == 0 {
		return false
	}
	return m.Want == "" || strings.Contains(string(data), m.Want)
}

// Depths probes base, then base with segment appended once, twice and so on
// up to max times. The first root whose marker checks out is returned.
func Depths(ctx context.Context, f Fetcher, base, segment string, max int, m Marker) (string, bool) {
	root := Dir(base)
	for n := 0; n <= max; n++ {
		if ctx.Err() != nil {
			return "", false
		}
		if Check(ctx, f, root, m) {
			return root, true
		}
		root += segment + "/"
	}
	return "", false
}

// Dir returns u with exactly one trailing slash.
func Dir(u string) string {
	return strings.TrimRight(u, "/") + "/"
}

// Join appends a relative path to a mirror root.
func Join(base, rel string) string {
	return Dir(base) + strings.TrimLeft(rel, "/")
}
