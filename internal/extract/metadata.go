package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// Metadata is what the page head says about itself.
type Metadata struct {
	Title         string
	Description   string
	Author        string
	PublishedTime string
	SiteName      string
}

// readMetadata reads name metas with goquery and og: properties with go-opengraph.
// Property metas are also read with goquery when go-opengraph cannot parse the page.
// Article and og: properties win over the generic name metas.
func readMetadata(doc *goquery.Document, rawHTML string) Metadata {
	og := opengraph.NewOpenGraph()
	ogErr := og.ProcessHTML(strings.NewReader(rawHTML))

	ogDescription := og.Description
	ogSiteName := og.SiteName
	if ogErr != nil {
		ogDescription = metaContent(doc, `meta[property="og:description"]`)
		ogSiteName = metaContent(doc, `meta[property="og:site_name"]`)
	}

	return Metadata{
		Title:         strings.TrimSpace(doc.Find("title").First().Text()),
		Description:   firstNonEmpty(ogDescription, metaContent(doc, `meta[name="description"]`)),
		Author:        firstNonEmpty(metaContent(doc, `meta[property="article:author"]`), metaContent(doc, `meta[name="author"]`)),
		PublishedTime: metaContent(doc, `meta[property="article:published_time"]`),
		SiteName:      ogSiteName,
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	value, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
