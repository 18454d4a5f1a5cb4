package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Source is the cleaned page handed to every strategy.
type Source struct {
	HTML string
	URL  *url.URL
	Meta Metadata
}

// Candidate is what a strategy produced. Blank HTML means "try the next strategy".
type Candidate struct {
	HTML    string
	Title   string
	Byline  string
	Excerpt string
}

// Strategy proposes the main content of a page.
type Strategy func(src Source, opts reader.ExtractOptions) Candidate

// DefaultLadder returns the strategies in evaluation order.
func DefaultLadder() []Strategy {
	return []Strategy{
		targetStrategy,
		fullBodyStrategy,
		readabilityStrategy,
		bodyStrategy,
	}
}

const readabilityCharThreshold = 50

var (
	fullBodyNoise = []string{".ad", ".ads", ".advertisement", "[data-ad]", ".cookie-banner", ".popup"}
	bodyNoise     = []string{"aside", ".sidebar", ".ad", ".ads", ".advertisement"}
)

func targetStrategy(src Source, opts reader.ExtractOptions) Candidate {
	if strings.TrimSpace(opts.TargetSelector) == "" {
		return Candidate{}
	}
	doc, err := parseDocument(src.HTML)
	if err != nil {
		return Candidate{}
	}
	inner, err := doc.Find(opts.TargetSelector).First().Html()
	if err != nil {
		return Candidate{}
	}
	return Candidate{HTML: inner}
}

func fullBodyStrategy(src Source, opts reader.ExtractOptions) Candidate {
	if !opts.FullContent {
		return Candidate{}
	}
	inner := cleanedBody(src.HTML, fullBodyNoise)
	if inner == "" {
		return Candidate{}
	}
	return Candidate{HTML: inner, Excerpt: src.Meta.Description}
}

func readabilityStrategy(src Source, _ reader.ExtractOptions) Candidate {
	parser := readability.NewParser()
	parser.CharThresholds = readabilityCharThreshold
	article, err := parser.Parse(strings.NewReader(src.HTML), src.URL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return Candidate{}
	}
	return Candidate{
		HTML:    article.Content,
		Title:   strings.TrimSpace(article.Title),
		Byline:  strings.TrimSpace(article.Byline),
		Excerpt: strings.TrimSpace(article.Excerpt),
	}
}

func bodyStrategy(src Source, _ reader.ExtractOptions) Candidate {
	return Candidate{HTML: cleanedBody(src.HTML, bodyNoise)}
}

func cleanedBody(html string, noise []string) string {
	doc, err := parseDocument(html)
	if err != nil {
		return ""
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	for _, selector := range noise {
		body.Find(selector).Remove()
	}
	inner, err := body.Html()
	if err != nil {
		return ""
	}
	return inner
}

// isBlank reports whether markup carries neither text nor images.
func isBlank(html string) bool {
	if strings.TrimSpace(html) == "" {
		return true
	}
	doc, err := parseDocument(html)
	if err != nil {
		return true
	}
	if strings.TrimSpace(doc.Text()) != "" {
		return false
	}
	return doc.Find("img[src]").Length() == 0
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
