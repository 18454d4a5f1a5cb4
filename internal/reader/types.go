// Package reader defines the core types shared across the fetch and extraction pipeline
// and hosts the Service that resolves a URL into a Markdown document.
package reader

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Engine selects the fetch strategy used for a request.
type Engine string

// Supported engines.
const (
	EngineDirect   Engine = "direct"
	EngineRendered Engine = "rendered"
	// EngineAuto fetches directly and re-fetches rendered when the page is an unrendered app shell.
	EngineAuto Engine = "auto"
)

// ParseEngine normalizes an engine name. "browser" is accepted as an alias for rendered.
func ParseEngine(raw string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "direct":
		return EngineDirect, nil
	case "rendered", "browser":
		return EngineRendered, nil
	case "auto":
		return EngineAuto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEngine, raw)
	}
}

// FetchRequest captures everything needed to resolve one URL. It is built once per
// inbound call and never mutated afterwards.
type FetchRequest struct {
	URL             string
	Engine          Engine
	TargetSelector  string
	RemoveSelectors []string
	WaitForSelector string
	IncludeLinks    bool
	IncludeImages   bool
	FullContent     bool
	Timeout         time.Duration
	NoCache         bool
}

// CacheKey derives the fingerprint used by the result cache.
func CacheKey(req FetchRequest) string {
	selectors := append([]string(nil), req.RemoveSelectors...)
	sort.Strings(selectors)
	return fmt.Sprintf("%s:%s:%s:%s", req.Engine, req.URL, req.TargetSelector, strings.Join(selectors, ","))
}

// Usage carries model usage estimates for the produced content.
type Usage struct {
	Tokens *int `json:"tokens"`
}

// Document is the pipeline output. Once cached it is shared read-only; callers
// receive copies via Clone.
type Document struct {
	URL              string            `json:"url"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Author           string            `json:"author"`
	PublishedTime    string            `json:"publishedTime"`
	SiteName         string            `json:"siteName"`
	Content          string            `json:"content"`
	Excerpt          string            `json:"excerpt"`
	Links            map[string]string `json:"links,omitempty"`
	Images           map[string]string `json:"images,omitempty"`
	Usage            Usage             `json:"usage"`
	Engine           Engine            `json:"engine"`
	Cached           bool              `json:"cached"`
	ProcessingTimeMs int64             `json:"processingTime"`
}

// Clone returns a deep copy so cached values are never mutated in place.
func (d Document) Clone() Document {
	cp := d
	cp.Links = cloneMap(d.Links)
	cp.Images = cloneMap(d.Images)
	if d.Usage.Tokens != nil {
		n := *d.Usage.Tokens
		cp.Usage.Tokens = &n
	}
	return cp
}

func cloneMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
