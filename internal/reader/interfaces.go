package reader

import (
	"context"
	"net/url"
	"time"
)

// Fetcher retrieves raw HTML for a request using one engine.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (string, error)
}

// Guard rejects URLs that are malformed or point into internal network space.
type Guard interface {
	Validate(ctx context.Context, rawURL string) (*url.URL, error)
}

// Extractor turns raw HTML into a Document.
type Extractor interface {
	Extract(html string, pageURL *url.URL, opts ExtractOptions) (Document, error)
}

// ExtractOptions are the request fields that influence extraction.
type ExtractOptions struct {
	TargetSelector  string
	RemoveSelectors []string
	IncludeLinks    bool
	IncludeImages   bool
	FullContent     bool
}

// Cache memoizes documents by fingerprint.
type Cache interface {
	Get(key string) (Document, bool)
	Set(key string, doc Document)
	Clear()
	Len() int
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
