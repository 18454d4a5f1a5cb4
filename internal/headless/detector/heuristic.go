// Package detector decides when a directly fetched page needs a browser render.
package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBodyThreshold is the size under which script-heavy pages are promoted.
const DefaultBodyThreshold = 2048

// mountSelectors match the root nodes client-side frameworks render into.
var mountSelectors = []string{"#__next", "#root", "#app", "[data-reactroot]", "#__nuxt", "[ng-app]"}

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold uses DefaultBodyThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// ShouldPromote reports whether html looks like an unrendered client-side app:
// an empty document, a small script-dominated page, or an empty framework
// mount node with no other readable text.
func (h *Heuristic) ShouldPromote(html string) bool {
	if strings.TrimSpace(html) == "" {
		return true
	}
	if len(html) < h.BodyLengthThreshold && scriptDensityHigh(html) {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return emptyMountNode(doc)
}

func emptyMountNode(doc *goquery.Document) bool {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	for _, selector := range mountSelectors {
		mount := body.Find(selector).First()
		if mount.Length() == 0 {
			continue
		}
		if strings.TrimSpace(mount.Text()) == "" && strings.TrimSpace(body.Text()) == "" {
			return true
		}
	}
	return false
}

func scriptDensityHigh(html string) bool {
	lower := strings.ToLower(html)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			// Script tag never closes; count the rest.
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
