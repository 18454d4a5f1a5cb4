// Package format renders documents for plain-text API responses.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Markdown renders doc as a standalone Markdown page with a title, a metadata
// line, an optional excerpt quote, the content and Links/Images sections.
func Markdown(doc reader.Document) string {
	var b strings.Builder

	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	}

	meta := make([]string, 0, 4)
	if doc.Author != "" {
		meta = append(meta, "**Author:** "+doc.Author)
	}
	if doc.PublishedTime != "" {
		meta = append(meta, "**Published:** "+doc.PublishedTime)
	}
	if doc.SiteName != "" {
		meta = append(meta, "**Site:** "+doc.SiteName)
	}
	if doc.URL != "" {
		meta = append(meta, "**Source:** "+doc.URL)
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, " | "))
		b.WriteString("\n\n---\n\n")
	}

	if doc.Excerpt != "" && !strings.HasPrefix(doc.Content, doc.Excerpt) {
		fmt.Fprintf(&b, "> %s\n\n", doc.Excerpt)
	}

	b.WriteString(doc.Content)

	if len(doc.Links) > 0 {
		b.WriteString("\n\n---\n\n## Links\n\n")
		for _, text := range sortedKeys(doc.Links) {
			fmt.Fprintf(&b, "- [%s](%s)\n", text, doc.Links[text])
		}
	}

	if len(doc.Images) > 0 {
		b.WriteString("\n\n---\n\n## Images\n\n")
		for _, alt := range sortedKeys(doc.Images) {
			fmt.Fprintf(&b, "- ![%s](%s)\n", alt, doc.Images[alt])
		}
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
