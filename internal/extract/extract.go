// Package extract turns fetched HTML into a Markdown document using an ordered
// ladder of content strategies.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/JakeFAU/webreader/internal/reader"
)

// DefaultMaxContentLength is the content budget in characters.
const DefaultMaxContentLength = 100000

var alwaysRemove = []string{
	"script", "style", "noscript", "svg", "canvas",
	`iframe[src*="ads"]`, "[hidden]", `[aria-hidden="true"]`,
}

// TokenCounter estimates tokens for content. A nil result means unavailable.
type TokenCounter interface {
	Count(text string) *int
}

// Config controls the Extractor.
type Config struct {
	MaxContentLength int
	// Ladder overrides DefaultLadder.
	Ladder []Strategy
}

// Extractor implements reader.Extractor.
type Extractor struct {
	ladder    []Strategy
	maxLength int
	tokens    TokenCounter
	converter *md.Converter
	logger    *zap.Logger
}

// New builds an Extractor. tokens may be nil.
func New(cfg Config, tokens TokenCounter, logger *zap.Logger) *Extractor {
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		ladder:    ladder,
		maxLength: cfg.MaxContentLength,
		tokens:    tokens,
		converter: newConverter(),
		logger:    logger,
	}
}

// Extract runs cleanup, the strategy ladder, link collection and Markdown conversion.
func (e *Extractor) Extract(html string, pageURL *url.URL, opts reader.ExtractOptions) (reader.Document, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return reader.Document{}, fmt.Errorf("parse html: %w", err)
	}
	meta := readMetadata(doc, html)

	callerSelectors := e.validSelectors(opts.RemoveSelectors)
	removeAll(doc.Selection, alwaysRemove)
	removeAll(doc.Selection, callerSelectors)

	cleaned, err := doc.Html()
	if err != nil {
		return reader.Document{}, fmt.Errorf("render cleaned html: %w", err)
	}
	if opts.TargetSelector != "" && len(e.validSelectors([]string{opts.TargetSelector})) == 0 {
		opts.TargetSelector = ""
	}

	src := Source{HTML: cleaned, URL: pageURL, Meta: meta}
	candidate, rung, ok := e.runLadder(src, opts)
	if !ok {
		return reader.Document{}, reader.ErrNoContent
	}
	e.logger.Debug("content selected", zap.Int("rung", rung), zap.Int("bytes", len(candidate.HTML)))

	frag, err := newFragment(candidate.HTML, pageURL)
	if err != nil {
		return reader.Document{}, err
	}
	result := reader.Document{
		Title:         firstNonEmpty(candidate.Title, meta.Title),
		Description:   meta.Description,
		Author:        firstNonEmpty(candidate.Byline, meta.Author),
		PublishedTime: meta.PublishedTime,
		SiteName:      meta.SiteName,
		Excerpt:       candidate.Excerpt,
	}
	if opts.IncludeLinks {
		result.Links = frag.links()
	}
	if opts.IncludeImages {
		result.Images = frag.images()
	}

	frag.absolutize()
	removeAll(frag.doc.Selection, callerSelectors)
	body, err := frag.html()
	if err != nil {
		return reader.Document{}, err
	}
	content, err := toMarkdown(e.converter, body)
	if err != nil {
		return reader.Document{}, err
	}
	result.Content = truncate(content, e.maxLength)
	if e.tokens != nil {
		result.Usage.Tokens = e.tokens.Count(result.Content)
	}
	return result, nil
}

func (e *Extractor) runLadder(src Source, opts reader.ExtractOptions) (Candidate, int, bool) {
	for i, strategy := range e.ladder {
		candidate := strategy(src, opts)
		if !isBlank(candidate.HTML) {
			return candidate, i, true
		}
	}
	return Candidate{}, -1, false
}

// validSelectors drops selectors cascadia cannot compile.
func (e *Extractor) validSelectors(selectors []string) []string {
	valid := make([]string, 0, len(selectors))
	for _, raw := range selectors {
		selector := strings.TrimSpace(raw)
		if selector == "" {
			continue
		}
		if _, err := cascadia.Compile(selector); err != nil {
			e.logger.Debug("skipping invalid selector", zap.String("selector", selector), zap.Error(err))
			continue
		}
		valid = append(valid, selector)
	}
	return valid
}

func removeAll(root *goquery.Selection, selectors []string) {
	for _, selector := range selectors {
		root.Find(selector).Remove()
	}
}
