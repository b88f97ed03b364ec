package sites

import (
	"bytes"
	"context"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/probe"
	"github.com/PuerkitoBio/goquery"
	"github.com/morikuni/failure/v2"
)

func parseHTML(page []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, failure.Translate(err, ErrMalformedPage)
	}
	return doc, nil
}

// hrefs collects the supported absolute links under sel.
func hrefs(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if supportedURL(href) {
			out = append(out, href)
		}
	})
	return out
}

func mentions(sel *goquery.Selection, word string) bool {
	return strings.Contains(strings.ToLower(sel.Text()), strings.ToLower(word))
}

type apache struct{}

func (apache) Kind() Kind { return KindApache }

func (apache) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("h2, h3").Each(func(_ int, h *goquery.Selection) {
		if !mentions(h, "mirror") {
			return
		}
		table := h.NextAllFiltered("table").First()
		out = append(out, hrefs(table.Find("td a[href]"))...)
	})
	return out, nil
}

func (apache) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Path: "zzz/time.txt"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}

type debian struct{}

func (debian) Kind() Kind { return KindDebian }

func (debian) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		if mentions(row, "non-US") {
			return
		}
		for _, href := range hrefs(row.Find("a[href]")) {
			if strings.Contains(href, "/debian/") {
				out = append(out, href)
			}
		}
	})
	return out, nil
}

func (debian) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Path: "README", Want: "Debian"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}

type freebsd struct{}

func (freebsd) Kind() Kind { return KindFreeBSD }

func (freebsd) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	return hrefs(doc.Find("#mirrors a[href]")), nil
}

// Mirrors publish the tree anywhere from the host root to two FreeBSD/
// levels down.
func (freebsd) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	return probe.Depths(ctx, f, candidate, "FreeBSD", 2, probe.Marker{Path: "README.TXT", Want: "FreeBSD"})
}

type gimp struct{}

func (gimp) Kind() Kind { return KindGimp }

func (gimp) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	return hrefs(doc.Find("dl dd a[href]")), nil
}

func (gimp) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	return probe.Depths(ctx, f, candidate, "gimp", 1, probe.Marker{Want: "v2."})
}

type gnu struct{}

func (gnu) Kind() Kind { return KindGNU }

func (gnu) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("#content ul li").Each(func(_ int, li *goquery.Selection) {
		// alpha.gnu.org mirrors carry pre-releases only
		if mentions(li, "alpha") {
			return
		}
		out = append(out, hrefs(li.ChildrenFiltered("a[href]"))...)
	})
	return out, nil
}

func (gnu) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	return probe.Depths(ctx, f, candidate, "gnu", 1, probe.Marker{Path: "README", Want: "GNU"})
}

type kde struct{}

func (kde) Kind() Kind { return KindKDE }

func (kde) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	return hrefs(doc.Find("table.mirrors a[href]")), nil
}

func (kde) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Want: "stable/"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}

type postgresql struct{}

func (postgresql) Kind() Kind { return KindPostgreSQL }

func (postgresql) Extract(page []byte) ([]string, error) {
	doc, err := parseHTML(page)
	if err != nil {
		return nil, err
	}
	return hrefs(doc.Find(`a[href*="/pub/"]`)), nil
}

func (postgresql) Validate(ctx context.Context, f probe.Fetcher, candidate string) (string, bool) {
	if !probe.Check(ctx, f, candidate, probe.Marker{Path: "README", Want: "PostgreSQL"}) {
		return "", false
	}
	return probe.Dir(candidate), true
}
