package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fragment is the extracted content region, parsed once for link work and conversion.
type fragment struct {
	doc  *goquery.Document
	base *url.URL
}

func newFragment(html string, base *url.URL) (*fragment, error) {
	doc, err := parseDocument("<div>" + html + "</div>")
	if err != nil {
		return nil, fmt.Errorf("parse content fragment: %w", err)
	}
	return &fragment{doc: doc, base: base}, nil
}

// links maps anchor text to absolute URLs. In-page and javascript: anchors are skipped.
func (f *fragment) links() map[string]string {
	links := make(map[string]string)
	f.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if text == "" || !followable(href) {
			return
		}
		if abs, ok := resolve(f.base, href); ok {
			links[text] = abs
		}
	})
	return links
}

// images maps alt text to absolute image URLs. Missing alt text becomes "Image N".
func (f *fragment) images() map[string]string {
	images := make(map[string]string)
	f.doc.Find("img[src]").Each(func(i int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if strings.TrimSpace(src) == "" {
			return
		}
		alt, _ := img.Attr("alt")
		if alt == "" {
			alt = fmt.Sprintf("Image %d", i+1)
		}
		if abs, ok := resolve(f.base, src); ok {
			images[alt] = abs
		}
	})
	return images
}

// absolutize rewrites href and src attributes in place so converted Markdown links are absolute.
func (f *fragment) absolutize() {
	f.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !followable(href) {
			return
		}
		if abs, ok := resolve(f.base, href); ok {
			a.SetAttr("href", abs)
		}
	})
	f.doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if abs, ok := resolve(f.base, src); ok {
			img.SetAttr("src", abs)
		}
	})
}

// html serializes the fragment contents.
func (f *fragment) html() (string, error) {
	out, err := f.doc.Find("body > div").First().Html()
	if err != nil {
		return "", fmt.Errorf("render content fragment: %w", err)
	}
	return out, nil
}

func followable(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	return !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !parsed.IsAbs() {
			return "", false
		}
		return parsed.String(), true
	}
	return base.ResolveReference(parsed).String(), true
}
