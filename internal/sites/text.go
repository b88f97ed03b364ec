package sites

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/probe"
)

var (
	cpanHostLine = regexp.MustCompile(`^[A-Za-z0-9][^\s=]*:\s*$`)
	cpanDstLine  = regexp.MustCompile(`^\s+dst_(?:http|ftp)\s*=\s*"([^"]+)"`)
	cpanLocLine  = regexp.MustCompile(`^\s+dst_location\s*=\s*"([^"]*)"`)
	ctanURLLine  = regexp.MustCompile(`(?i)^\s*URL:\s*(\S+)`)
	urlToken     = regexp.MustCompile(`(?:https?|ftp)://\S+`)
	sfUseMirror  = regexp.MustCompile(`use_mirror=([a-z0-9][a-z0-9-]*)`)
)

func lines(page []byte) []string {
	var out []string
	s := bufio.NewScanner(bytes.NewReader(page))
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		out = append(out, s.Text())
	}
	return out
}

type cpan struct{}

func (cpan) Kind() Kind { return KindCPAN }

// Extract walks the MIRRORED.BY blocks. A block starts at an unindented
// "host:" line and holds indented key = "value" lines.
func (cpan) Extract(page []byte) ([]string, error) {
	var (
		out     []string
		block   []string
		retired bool
	)
	flush := func() {
		if !retired {
			out = append(out, block...)
		}
		block, retired = nil, false
	}
	for _, line := range lines(page) {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if cpanHostLine.MatchString(line) {
			flush()
			continue
		}
		if m := cpanLocLine.FindStringSubmatch(line); m != nil {
			if strings.Contains(strings.ToLower(m[1]), "retired") {
				retired = true
			}
			continue
		}
		if m := cpanDstLine.FindStringSubmatch(line); m != nil && supportedURL(m[1]) {
			block = append(block, m[1])
		}
	}
	flush()
	return out, nil
}

func (cpan) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Path: "README", Want: "Comprehensive Perl Archive Network"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}

type ctan struct{}

func (ctan) Kind() Kind { return KindCTAN }

func (ctan) Extract(page []byte) ([]string, error) {
	var out []string
	for _, line := range lines(page) {
		if m := ctanURLLine.FindStringSubmatch(line); m != nil && supportedURL(m[1]) {
			out = append(out, m[1])
		}
	}
	return out, nil
}

func (ctan) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	return probe.Depths(ctx, f, candidate, "tex-archive", 1, probe.Marker{Path: "CTAN.sites"})
}

type gnome struct{}

func (gnome) Kind() Kind { return KindGNOME }

func (gnome) Extract(page []byte) ([]string, error) {
	var out []string
	for _, line := range lines(page) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if u := urlToken.FindString(line); u != "" && supportedURL(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (gnome) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Path: "README", Want: "GNOME"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}

type sourceforge struct{}

func (sourceforge) Kind() Kind { return KindSourceForge }

func (sourceforge) Extract(page []byte) ([]string, error) {
	var out []string
	for _, m := range sfUseMirror.FindAllSubmatch(page, -1) {
		out = append(out, "https://"+string(m[1])+".dl.sourceforge.net/project/")
	}
	return out, nil
}

// Validate accepts every templated mirror; SourceForge only lists live ones.
func (sourceforge) Validate(_ context.Context, _ probe.Fetcher, candidate string) (string, bool) {
	return probe.Dir(candidate), true
}
