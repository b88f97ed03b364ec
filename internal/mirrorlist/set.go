package mirrorlist

import (
	"sort"

	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/samber/lo"
)

// Entry is one classified mirror.
type Entry struct {
	RegionKey string
	URL       string
}

// MirrorSet groups a network's classified mirrors by region key.
type MirrorSet struct {
	Network sites.Network
	Groups  map[string][]string

	// Candidates counts every candidate considered, including the primary.
	Candidates int
	// Dropped counts candidates that could not be canonicalised, classified
	// or resolved.
	Dropped int

	seen map[string]struct{}
}

// NewMirrorSet creates an empty set for n.
func NewMirrorSet(n sites.Network) *MirrorSet {
	return &MirrorSet{
		Network: n,
		Groups:  make(map[string][]string),
		seen:    make(map[string]struct{}),
	}
}

// Add records url under key. It reports false when url was already present
// under any key.
func (s *MirrorSet) Add(key, url string) bool {
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.Groups[key] = append(s.Groups[key], url)
	return true
}

// Len returns the number of mirrors in the set.
func (s *MirrorSet) Len() int {
	return len(s.seen)
}

// Entries returns the mirrors sorted by region key, then URL.
func (s *MirrorSet) Entries() []Entry {
	keys := lo.Keys(s.Groups)
	sort.Strings(keys)

	entries := make([]Entry, 0, s.Len())
	for _, key := range keys {
		urls := append([]string(nil), s.Groups[key]...)
		sort.Strings(urls)
		for _, u := range urls {
			entries = append(entries, Entry{RegionKey: key, URL: u})
		}
	}
	return entries
}
