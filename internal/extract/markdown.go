package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// TruncationMarker is appended once to content cut at the length budget.
const TruncationMarker = "\n\n[Content truncated...]"

var (
	conversionStripTags = []string{"script", "style", "noscript", "svg", "canvas"}
	excessiveLinesRe    = regexp.MustCompile(`\n{3,}`)
)

func newConverter() *md.Converter {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		CodeBlockStyle:   "fenced",
		BulletListMarker: "-",
		EmDelimiter:      "_",
		StrongDelimiter:  "**",
	})
	converter.Use(plugin.GitHubFlavored())
	converter.Remove(conversionStripTags...)
	return converter
}

func toMarkdown(converter *md.Converter, html string) (string, error) {
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return normalizeMarkdown(out), nil
}

func normalizeMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// truncate keeps the first limit runes and appends TruncationMarker. limit <= 0 disables it.
func truncate(content string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(content) <= limit {
		return content
	}
	cut := 0
	for i := range content {
		if cut == limit {
			return content[:i] + TruncationMarker
		}
		cut++
	}
	return content
}
