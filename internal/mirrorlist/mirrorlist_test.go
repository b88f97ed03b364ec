package mirrorlist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/fetch"
	"github.com/BadgerOps/mirrorlist/internal/geo"
	"github.com/BadgerOps/mirrorlist/internal/region"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/google/go-cmp/cmp"
	"github.com/morikuni/failure/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mapLookup map[string]string

func (m mapLookup) CountryCodeByName(_ context.Context, host string) string {
	return m[host]
}

const regionTable = `# test table
na-us: North America
eu-de: Germany
eu-eur: Europe
`

func testResolver(t *testing.T) *region.Resolver {
	t.Helper()
	table, err := region.Parse(strings.NewReader(regionTable))
	if err != nil {
		t.Fatalf("parse region table: %v", err)
	}
	return region.NewResolver(table)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://example.org/", "http://example.org"},
		{"HTTP://Mirror.Example.ORG:80/pub//gnu/", "http://mirror.example.org/pub/gnu"},
		{"https://example.org:443/a/./b/../c///", "https://example.org/a/c"},
		{"ftp://ftp.example.org:21/pub/", "ftp://ftp.example.org/pub"},
		{"http://example.org:8080/x/#frag", "http://example.org:8080/x"},
		{"http://[2001:DB8::1]:80/debian/", "http://[2001:db8::1]/debian"},
		{"https://example.org/search?q=1", "https://example.org/search?q=1"},
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		if err != nil {
			t.Errorf("Canonicalize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		again, err := Canonicalize(got)
		if err != nil || again != got {
			t.Errorf("Canonicalize not idempotent for %q: %q then %q (%v)", tt.in, got, again, err)
		}
	}
}

func TestCanonicalizeMalformed(t *testing.T) {
	_, err := Canonicalize("http://bad host/%zz")
	if !failure.Is(err, ErrUnresolvableHost) {
		t.Fatalf("expected ErrUnresolvableHost, got %v", err)
	}
}

func TestMirrorSetEntries(t *testing.T) {
	set := NewMirrorSet(sites.Network{Name: "GNU"})
	set.Add("na-us", "http://b.example.org")
	set.Add("eu-de", "http://z.example.de")
	set.Add("na-us", "http://a.example.org")
	if set.Add("eu-de", "http://a.example.org") {
		t.Error("Add accepted a URL already present under another key")
	}

	want := []Entry{
		{RegionKey: "eu-de", URL: "http://z.example.de"},
		{RegionKey: "na-us", URL: "http://a.example.org"},
		{RegionKey: "na-us", URL: "http://b.example.org"},
	}
	if diff := cmp.Diff(want, set.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
}

type stubFetcher struct {
	page []byte
	ok   bool
}

func (s stubFetcher) Fetch(context.Context, string) ([]byte, bool) {
	return s.page, s.ok
}

type stubParser []string

func (p stubParser) Parse(context.Context, sites.Network, []byte) ([]string, error) {
	return p, nil
}

func TestProcessDropsUnresolvableAndUnmapped(t *testing.T) {
	n := sites.Network{Name: "GNU", ListURL: "http://list.example/", PrimaryURL: "http://ftp.example.org/gnu/"}
	parser := stubParser{
		"mailto:ops@example.org",
		"http://mirror.example.jp/gnu/",
		"http://mirror.example.de/gnu/",
		"HTTP://MIRROR.EXAMPLE.DE:80/gnu",
	}
	a := NewAssembler(stubFetcher{page: []byte("x"), ok: true}, parser,
		geo.NewClassifier(nil), testResolver(t), 2, testLogger())

	set, err := a.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []Entry{
		{RegionKey: "eu-de", URL: "http://mirror.example.de/gnu"},
		{RegionKey: "na-us", URL: "http://ftp.example.org/gnu"},
	}
	if diff := cmp.Diff(want, set.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
	if set.Candidates != 5 {
		t.Errorf("Candidates = %d, want 5", set.Candidates)
	}
	// mailto has no host, .jp has no region key
	if set.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", set.Dropped)
	}
}

func TestProcessListFetchFailure(t *testing.T) {
	a := NewAssembler(stubFetcher{}, stubParser{"http://x.example.org/"},
		geo.NewClassifier(nil), testResolver(t), 1, testLogger())
	_, err := a.Process(context.Background(), sites.Network{Name: "KDE", ListURL: "http://list.example/"})
	if !failure.Is(err, ErrMirrorListFetchFailure) {
		t.Fatalf("expected ErrMirrorListFetchFailure, got %v", err)
	}
}

func TestProcessEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/mirrors/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<h2>Mirror sites</h2>
<table>
<tr><td><a href="%s/good/">good</a></td></tr>
<tr><td><a href="/not-absolute/">relative</a></td></tr>
<tr><td>no link here</td></tr>
</table></body></html>`, srv.URL)
	})
	mux.HandleFunc("/good/zzz/time.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1700000000\n")
	})

	n := sites.Network{
		Name:       "Apache",
		ListURL:    srv.URL + "/mirrors/",
		PrimaryURL: "http://downloads.example.org/",
		Kind:       sites.KindApache,
	}
	client := fetch.New(fetch.Options{Timeout: 5 * time.Second}, testLogger())
	parser := sites.NewParser(client, 2, testLogger())
	classifier := geo.NewClassifier(mapLookup{"127.0.0.1": "de"})
	a := NewAssembler(client, parser, classifier, testResolver(t), 2, testLogger())

	set, err := a.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []Entry{
		{RegionKey: "eu-de", URL: srv.URL + "/good"},
		{RegionKey: "na-us", URL: "http://downloads.example.org"},
	}
	if diff := cmp.Diff(want, set.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	dir := t.TempDir()
	w := &Writer{Dir: dir, Now: func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }}
	path, err := w.Write(set)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "apache" {
		t.Errorf("published as %q, want apache", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	wantFile := "# Mirror list generated from " + n.ListURL + "\n" +
		"# Generated: 2024-03-09\n\n" +
		"Primary: http://downloads.example.org/\n\n" +
		"eu-de: " + srv.URL + "/good\n" +
		"na-us: http://downloads.example.org\n"
	if diff := cmp.Diff(wantFile, string(data)); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessPrimaryWithEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# nothing listed\n")
	}))
	defer srv.Close()

	n := sites.Network{Name: "GNOME", ListURL: srv.URL, PrimaryURL: "https://download.example.org/", Kind: sites.KindGNOME}
	client := fetch.New(fetch.Options{}, testLogger())
	a := NewAssembler(client, sites.NewParser(client, 1, testLogger()),
		geo.NewClassifier(nil), testResolver(t), 1, testLogger())

	set, err := a.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []Entry{{RegionKey: "na-us", URL: "https://download.example.org"}}
	if diff := cmp.Diff(want, set.Entries()); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "kde")
	if err := os.WriteFile(dest, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	set := NewMirrorSet(sites.Network{Name: "KDE", ListURL: "http://l/", PrimaryURL: "http://p/"})
	set.Add("na-us", "http://p")
	if _, err := NewWriter(dir).Write(set); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if !strings.Contains(string(data), "na-us: http://p\n") {
		t.Errorf("unexpected content:\n%s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the published file, found %d entries", len(entries))
	}
}

func TestWriteFailureLeavesNoFiles(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(filepath.Join(blocker, "out"))
	_, err := w.Write(NewMirrorSet(sites.Network{Name: "CPAN"}))
	if !failure.Is(err, ErrOutputWriteFailure) {
		t.Fatalf("expected ErrOutputWriteFailure, got %v", err)
	}
}

func TestFailedFetchWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := fetch.New(fetch.Options{}, testLogger())
	a := NewAssembler(client, sites.NewParser(client, 1, testLogger()),
		geo.NewClassifier(nil), testResolver(t), 1, testLogger())

	n := sites.Network{Name: "CTAN", ListURL: srv.URL, PrimaryURL: "https://ctan.example.org/", Kind: sites.KindCTAN}
	set, err := a.Process(context.Background(), n)
	if err == nil {
		if _, werr := NewWriter(dir).Write(set); werr != nil {
			t.Fatal(werr)
		}
		t.Fatal("expected Process to fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty output dir, found %d entries", len(entries))
	}
}
